package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/casualjim/mycelia/bus"
	"github.com/casualjim/mycelia/events"
	"github.com/casualjim/mycelia/pkg/slogx"
	"github.com/casualjim/mycelia/provider"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

const defaultConfidence = 0.5

// LLM consumes recalled context, runs inference through its Generator,
// and publishes the completed response.
type LLM struct {
	publisher  *bus.Publisher
	subscriber *bus.Subscriber
	generator  provider.Generator
	confidence float64
}

// Confidence sets the confidence reported on generated responses.
var Confidence = opts.ForName[LLM, float64]("confidence")

// NewLLM creates an LLM agent backed by the given generator.
func NewLLM(broker bus.Broker, generator provider.Generator, options ...opts.Option[LLM]) (*LLM, error) {
	a := &LLM{
		publisher:  bus.NewPublisher(broker),
		subscriber: bus.NewSubscriber(broker),
		generator:  generator,
		confidence: defaultConfidence,
	}
	if err := opts.Apply(a, options); err != nil {
		return nil, err
	}
	return a, nil
}

// Start binds the durable consumer on the memory subject. It returns
// false when the subscription cannot be established.
func (a *LLM) Start(ctx context.Context, durable string) bool {
	err := a.subscriber.Subscribe(ctx, events.SubjectMemoryRetrieved,
		bus.HandlerFor(a.handleMemory), bus.WithDurable(durable))
	if err != nil {
		slog.Error("llm agent failed to subscribe", slogx.Error(err))
		return false
	}
	return true
}

// Stop releases the agent's subscriptions. Safe to call repeatedly.
func (a *LLM) Stop() { a.subscriber.UnsubscribeAll() }

func (a *LLM) handleMemory(ctx context.Context, p events.MemoryRetrieved, d bus.Delivery) error {
	slog.Info("llm agent received context",
		slog.String("input_id", p.InputID),
		slog.Int("facts", len(p.Knowledge.Facts)),
	)

	response, err := a.generator.Generate(ctx, buildPrompt(p.Knowledge.Facts))
	if err != nil {
		return err
	}
	if response == "" {
		// an empty completion would fail payload validation downstream
		response = "I could not generate a response."
	}

	out := events.ResponseGenerated{
		FinalResponse: response,
		InputID:       p.InputID,
		Timestamp:     strfmt.DateTime(time.Now().UTC()),
		Confidence:    a.confidence,
	}
	if _, err := a.publisher.PublishPayload(ctx, out, true); err != nil {
		return err
	}
	return d.Ack()
}

func buildPrompt(facts []string) string {
	if len(facts) == 0 {
		return "Response:"
	}
	return strings.Join(facts, "\n") + "\nResponse:"
}
