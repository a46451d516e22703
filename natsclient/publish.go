package natsclient

import (
	"context"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/prcore/prcore/errors"
)

// PublishOption configures one publish.
type PublishOption func(*publishOptions)

type publishOptions struct {
	msgID         string
	correlationID string
}

// WithCorrelationID tags the message with the request key its reply should
// be correlated under.
func WithCorrelationID(id string) PublishOption {
	return func(o *publishOptions) {
		o.correlationID = id
	}
}

// WithMsgID overrides the generated message id. Tests use this to simulate
// redelivery of a known id.
func WithMsgID(id string) PublishOption {
	return func(o *publishOptions) {
		o.msgID = id
	}
}

// Publish sends envelope bytes to the named queue. Every message carries a
// unique message id header used for broker dedup and the application-level
// idempotency cache.
func (c *Client) Publish(ctx context.Context, queue string, data []byte, opts ...PublishOption) error {
	o := &publishOptions{msgID: uuid.NewString()}
	for _, opt := range opts {
		opt(o)
	}

	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()
	if js == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "Publish", "check connection")
	}

	msg := &nats.Msg{
		Subject: Subject(queue),
		Header:  header(o.msgID, o.correlationID),
		Data:    data,
	}
	if _, err := js.PublishMsg(ctx, msg, jetstream.WithMsgID(o.msgID)); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish to "+queue)
	}
	return nil
}
