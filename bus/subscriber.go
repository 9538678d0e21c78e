package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/casualjim/mycelia/pkg/slogx"
	"github.com/fogfish/opts"
)

// Subscriber binds handlers to subjects and owns the lifecycle of every
// subscription it creates. Each agent holds its own Subscriber so that
// stopping an agent releases exactly its bindings and nothing else.
type Subscriber struct {
	broker Broker

	mu   sync.Mutex
	subs []Subscription
}

// NewSubscriber creates a Subscriber over the given broker.
func NewSubscriber(broker Broker) *Subscriber {
	if broker == nil {
		panic("bus: subscriber requires a broker")
	}
	return &Subscriber{broker: broker}
}

// Subscribe binds handler to subject. With WithDurable the binding is a
// durable consumer requiring message-scoped manual acknowledgment; with
// WithQueue deliveries are load-balanced across the group.
func (s *Subscriber) Subscribe(ctx context.Context, subject string, h Handler, options ...opts.Option[SubOptions]) error {
	sub, err := s.broker.Subscribe(ctx, subject, h, options...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	slog.Info("subscribed", slog.String("subject", subject), slog.String("subscription", sub.ID()))
	return nil
}

// UnsubscribeAll releases every subscription created through this
// Subscriber. Broker-side durable consumer state is untouched; only this
// process's bindings go away. Safe to call repeatedly.
func (s *Subscriber) UnsubscribeAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe", slog.String("subscription", sub.ID()), slogx.Error(err))
		}
	}
	if len(subs) > 0 {
		slog.Info("released subscriptions", slog.Int("count", len(subs)))
	}
}
