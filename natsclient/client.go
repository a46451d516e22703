// Package natsclient wraps NATS JetStream as the orchestration transport:
// one durable work queue per worker identity, a fixed reply queue for the
// coordinator, publish with message-id and correlation headers, and a
// consume loop with explicit acknowledgement. Broker-initiated disconnects
// reconnect automatically after a fixed backoff instead of terminating the
// worker.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/metric"
	"github.com/prcore/prcore/pkg/retry"
)

// Header names used on every published message.
const (
	// HeaderMsgID doubles as the JetStream dedup id and the key of the
	// application-level idempotency cache.
	HeaderMsgID = "Nats-Msg-Id"
	// HeaderCorrelation carries the request key a reply belongs to.
	HeaderCorrelation = "Prcore-Correlation-Id"
)

// subjectPrefix namespaces all queue subjects.
const subjectPrefix = "prcore.q."

// streamPrefix namespaces all stream names.
const streamPrefix = "PRCORE_"

// Client manages the NATS connection and JetStream streams for one process.
type Client struct {
	url    string
	logger *slog.Logger

	reconnectWait  time.Duration
	connectTimeout time.Duration
	clientName     string

	metrics *metric.Metrics

	mu        sync.RWMutex
	conn      *nats.Conn
	js        jetstream.JetStream
	consumers map[string]jetstream.ConsumeContext
	closed    bool
}

// NewClient creates a client for the given NATS URL. The connection is
// established by Connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:            url,
		logger:         slog.Default(),
		reconnectWait:  5 * time.Second,
		connectTimeout: 5 * time.Second,
		clientName:     "prcore",
		consumers:      make(map[string]jetstream.ConsumeContext),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	return c, nil
}

// Connect dials the broker and initializes JetStream. Reconnects are
// unbounded with the configured fixed backoff; a dropped connection resumes
// consumption rather than terminating the process.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Client", "Connect", "already connected")
	}

	conn, err := nats.Connect(c.url,
		nats.Name(c.clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.connectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn("nats disconnected", "error", err)
			if c.metrics != nil {
				c.metrics.NATSConnected.Set(0)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			if c.metrics != nil {
				c.metrics.NATSConnected.Set(1)
				c.metrics.NATSReconnects.Inc()
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return errors.WrapTransient(err, "Client", "Connect", "dial broker")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapTransient(err, "Client", "Connect", "init jetstream")
	}

	c.conn = conn
	c.js = js
	if c.metrics != nil && conn.IsConnected() {
		c.metrics.NATSConnected.Set(1)
	}
	c.logger.Info("connected to nats", "url", c.url)
	return nil
}

// Close stops all consumers and drains the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	for queue, cc := range c.consumers {
		cc.Stop()
		delete(c.consumers, queue)
	}
	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.logger.Warn("nats drain failed", "error", err)
		}
		c.conn = nil
		c.js = nil
	}
	if c.metrics != nil {
		c.metrics.NATSConnected.Set(0)
	}
}

// IsConnected reports whether the underlying connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Subject returns the subject a queue's messages are published on.
func Subject(queue string) string {
	return subjectPrefix + queue
}

// StreamName returns the JetStream stream backing a queue.
func StreamName(queue string) string {
	return streamPrefix + queue
}

// EnsureQueue creates or updates the durable work-queue stream and consumer
// for the named queue. Idempotent; every worker ensures its own queue at
// startup and publishers ensure target queues before first use. JetStream
// management calls right after a connect can fail transiently, so the call
// is retried with backoff.
func (c *Client) EnsureQueue(ctx context.Context, queue string) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()
	if js == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "EnsureQueue", "check connection")
	}

	return retry.Do(ctx, retry.DefaultConfig(), func() error {
		return c.ensureQueue(ctx, js, queue)
	})
}

func (c *Client) ensureQueue(ctx context.Context, js jetstream.JetStream, queue string) error {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName(queue),
		Subjects:  []string{Subject(queue)},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		// Broker-side duplicate suppression window; the application-level
		// idempotency cache covers redeliveries past this window.
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "EnsureQueue", "create stream")
	}

	_, err = stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       queue,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    -1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "EnsureQueue", "create consumer")
	}
	return nil
}
