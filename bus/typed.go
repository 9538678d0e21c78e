package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/casualjim/mycelia/events"
	"github.com/casualjim/mycelia/pkg/slogx"
)

// TypedHandler consumes one decoded, schema-valid payload. It must
// resolve the delivery (Ack or Nak) on every path; returning an error
// without resolving causes a nak.
type TypedHandler[T events.Payload] func(ctx context.Context, payload T, d Delivery) error

// HandlerFor adapts a TypedHandler into a raw Handler, performing the
// decode-once validation at the bus boundary and enforcing the
// exactly-one-resolution contract:
//
//   - Payloads that fail decoding or schema validation are acked and
//     dropped with a logged error: redelivery cannot repair them.
//   - A handler error naks the message (if the handler did not already
//     resolve it), relying on broker redelivery and backoff.
//   - A handler that returns success without resolving is a bug; the
//     message is nak'd so the broker retries rather than losing it, and
//     the bug is logged.
//   - A panicking handler is recovered and its message nak'd; a dropped
//     or endlessly retried message must never crash the owning process.
func HandlerFor[T events.Payload](h TypedHandler[T]) Handler {
	return func(ctx context.Context, d Delivery) {
		td := &trackedDelivery{Delivery: d}
		defer func() {
			if r := recover(); r != nil {
				slog.Error("handler panicked",
					slog.String("subject", d.Subject()),
					slog.Any("panic", r),
				)
				if err := td.Nak(); err != nil {
					slog.Error("failed to nak after panic", slogx.Error(err))
				}
			}
		}()

		payload, err := events.Decode[T](d.Data())
		if err != nil {
			verr := &ValidationError{Subject: d.Subject(), Err: err}
			slog.Error("dropping invalid payload",
				slog.String("subject", d.Subject()),
				slog.String("input_id", events.CorrelationID(d.Data())),
				slogx.Error(verr),
			)
			if ackErr := td.Ack(); ackErr != nil {
				slog.Error("failed to ack invalid payload", slogx.Error(ackErr))
			}
			return
		}

		if err := h(ctx, payload, td); err != nil {
			var derr *DomainError
			if !errors.As(err, &derr) {
				err = &DomainError{Subject: d.Subject(), Err: err}
			}
			slog.Error("handler failed",
				slog.String("subject", d.Subject()),
				slogx.Error(err),
			)
			if !td.resolved.Load() {
				if nakErr := td.Nak(); nakErr != nil {
					slog.Error("failed to nak after handler error", slogx.Error(nakErr))
				}
			}
			return
		}

		if !td.resolved.Load() {
			// success without resolution is a handler bug that would leave
			// the message pending until the ack timeout
			slog.Error("handler returned without resolving delivery",
				slog.String("subject", d.Subject()),
			)
			if err := td.Nak(); err != nil {
				slog.Error("failed to nak unresolved delivery", slogx.Error(err))
			}
		}
	}
}

// trackedDelivery layers idempotent resolution tracking over a Delivery
// so the framework can detect unresolved messages. The first Ack or Nak
// wins; later calls return nil without reaching the broker.
type trackedDelivery struct {
	Delivery
	resolved atomic.Bool
}

func (d *trackedDelivery) Ack() error {
	if !d.resolved.CompareAndSwap(false, true) {
		return nil
	}
	if err := d.Delivery.Ack(); err != nil {
		return fmt.Errorf("ack %s: %w", d.Subject(), err)
	}
	return nil
}

func (d *trackedDelivery) Nak() error {
	if !d.resolved.CompareAndSwap(false, true) {
		return nil
	}
	if err := d.Delivery.Nak(); err != nil {
		return fmt.Errorf("nak %s: %w", d.Subject(), err)
	}
	return nil
}
