package bus

import (
	"context"

	"github.com/fogfish/opts"
)

// Receipt acknowledges that the broker persisted a durable publish.
type Receipt struct {
	Stream   string
	Sequence uint64
}

// Delivery is one message handed to a handler. Ack and Nak are
// idempotent: the first call wins and later calls are no-ops, so a
// handler that resolves on several paths cannot double-resolve.
type Delivery interface {
	// Subject is the subject the message was published on.
	Subject() string

	// Data is the raw payload.
	Data() []byte

	// Ack acknowledges the message, stopping redelivery.
	Ack() error

	// Nak negatively acknowledges the message, requesting redelivery.
	Nak() error
}

// Handler consumes one delivery. Implementations must resolve the
// delivery with exactly one Ack or Nak before returning; HandlerFor
// wraps this contract with a safety net.
type Handler func(ctx context.Context, d Delivery)

// SubOptions configures a single subscription.
type SubOptions struct {
	// Durable binds the subscription to a named, persistent consumer
	// whose cursor survives process restarts. Empty means best-effort:
	// no retention, no acknowledgment expected.
	Durable string

	// Queue names a queue group. Members sharing the group name on the
	// same subject have deliveries load-balanced across them.
	Queue string
}

var (
	// WithDurable binds the subscription to the named durable consumer.
	WithDurable = opts.ForName[SubOptions, string]("Durable")

	// WithQueue places the subscription in the named queue group.
	WithQueue = opts.ForName[SubOptions, string]("Queue")
)

// Broker is the transport abstraction the rest of the system is written
// against. Two implementations exist: JetStream for production and Local
// for in-process use.
type Broker interface {
	// Publish sends a fire-and-forget message over the non-persistent
	// transport. No receipt, no retention guarantee.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishDurable blocks until the broker acknowledges persistence or
	// the context expires, returning the stream sequence assigned.
	PublishDurable(ctx context.Context, subject string, data []byte) (*Receipt, error)

	// Subscribe binds a handler to a subject. Durable subscriptions must
	// manually resolve every delivery; best-effort subscriptions receive
	// messages with no acknowledgment protocol.
	Subscribe(ctx context.Context, subject string, h Handler, options ...opts.Option[SubOptions]) (Subscription, error)
}

// Subscription is one live binding created by Subscribe.
type Subscription interface {
	// ID uniquely identifies this binding within the process.
	ID() string

	// Unsubscribe releases this process's binding. It does not delete
	// broker-side durable consumer state; the cursor survives for the
	// next binding with the same durable name.
	Unsubscribe() error
}
