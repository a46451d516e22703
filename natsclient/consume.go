package natsclient

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/prcore/prcore/errors"
)

// Delivery is one message handed to a consume handler. Handlers must call
// Ack exactly once after processing completes (success or handled failure);
// unacked deliveries are redelivered by the broker, which is why consumers
// pair this with the idempotency cache.
type Delivery struct {
	Queue         string
	Data          []byte
	MsgID         string
	CorrelationID string

	msg jetstream.Msg
}

// Ack acknowledges the delivery.
func (d *Delivery) Ack() error {
	if d.msg == nil {
		return nil
	}
	return d.msg.Ack()
}

// Handler processes one delivery.
type Handler func(ctx context.Context, d *Delivery)

// Consume attaches a handler to the named queue and returns immediately; the
// handler runs on the consumer's dispatch goroutine until ctx is cancelled
// or the client closes. The JetStream consumer transparently resumes after
// reconnects.
func (c *Client) Consume(ctx context.Context, queue string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.js == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "Consume", "check connection")
	}
	if _, exists := c.consumers[queue]; exists {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Client", "Consume", "queue "+queue)
	}

	cons, err := c.js.Consumer(ctx, StreamName(queue), queue)
	if err != nil {
		return errors.WrapTransient(err, "Client", "Consume", "lookup consumer")
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		d := &Delivery{
			Queue:         queue,
			Data:          msg.Data(),
			MsgID:         msg.Headers().Get(HeaderMsgID),
			CorrelationID: msg.Headers().Get(HeaderCorrelation),
			msg:           msg,
		}
		handler(ctx, d)
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Consume", "attach handler")
	}

	c.consumers[queue] = cc

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		if running, ok := c.consumers[queue]; ok {
			running.Stop()
			delete(c.consumers, queue)
		}
		c.mu.Unlock()
	}()

	return nil
}

// header builds the message headers for a publish.
func header(msgID, correlationID string) nats.Header {
	h := nats.Header{}
	h.Set(HeaderMsgID, msgID)
	if correlationID != "" {
		h.Set(HeaderCorrelation, correlationID)
	}
	return h
}
