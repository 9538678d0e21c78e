package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/casualjim/mycelia/bus"
	"github.com/casualjim/mycelia/events"
	"github.com/casualjim/mycelia/memory"
	"github.com/casualjim/mycelia/pkg/slogx"
	"github.com/go-openapi/strfmt"
)

// Memory consumes input events, records each interaction through its
// Recaller, and publishes the recalled context for the LLM agent.
type Memory struct {
	publisher  *bus.Publisher
	subscriber *bus.Subscriber
	recaller   memory.Recaller
}

// NewMemory creates a memory agent backed by the given recaller.
func NewMemory(broker bus.Broker, recaller memory.Recaller) *Memory {
	return &Memory{
		publisher:  bus.NewPublisher(broker),
		subscriber: bus.NewSubscriber(broker),
		recaller:   recaller,
	}
}

// Start binds the durable consumer on the input subject. It returns
// false when the subscription cannot be established.
func (a *Memory) Start(ctx context.Context, durable string) bool {
	err := a.subscriber.Subscribe(ctx, events.SubjectInputReceived,
		bus.HandlerFor(a.handleInput), bus.WithDurable(durable))
	if err != nil {
		slog.Error("memory agent failed to subscribe", slogx.Error(err))
		return false
	}
	return true
}

// Stop releases the agent's subscriptions. Safe to call repeatedly.
func (a *Memory) Stop() { a.subscriber.UnsubscribeAll() }

func (a *Memory) handleInput(ctx context.Context, p events.InputReceived, d bus.Delivery) error {
	slog.Info("memory agent received input", slog.String("input_id", p.InputID))

	// recall failures nak: the fact graph may be down and redelivery
	// gives it another chance
	if err := a.recaller.StoreInteraction(ctx, p.UserInput); err != nil {
		return err
	}

	facts := a.recaller.RetrieveContext(ctx, p.UserInput)
	if facts == nil {
		facts = []string{}
	}

	out := events.MemoryRetrieved{
		Knowledge: events.RetrievedKnowledge{Facts: facts, Source: a.recaller.Source()},
		InputID:   p.InputID,
		Timestamp: strfmt.DateTime(time.Now().UTC()),
	}
	if _, err := a.publisher.PublishPayload(ctx, out, true); err != nil {
		return err
	}
	return d.Ack()
}
