package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/casualjim/mycelia/bus"
	"github.com/casualjim/mycelia/events"
	"github.com/casualjim/mycelia/pkg/slogx"
	"github.com/fogfish/opts"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const defaultMaxResponses = 100

// OutputCallback receives every delivered response exactly once.
type OutputCallback func(inputID, response string)

// Output is the terminal agent of the pipeline. It retains the most
// recent responses in a bounded map and hands each one to the optional
// callback.
type Output struct {
	subscriber   *bus.Subscriber
	callback     OutputCallback
	maxResponses int

	mu        sync.Mutex
	responses *orderedmap.OrderedMap[string, string] // input_id -> response, oldest first
}

var (
	// OnResponse installs the delivery callback.
	OnResponse = opts.ForName[Output, OutputCallback]("callback")

	// MaxResponses bounds the retained response map.
	MaxResponses = opts.ForName[Output, int]("maxResponses")
)

// NewOutput creates the output agent.
func NewOutput(broker bus.Broker, options ...opts.Option[Output]) (*Output, error) {
	a := &Output{
		subscriber:   bus.NewSubscriber(broker),
		maxResponses: defaultMaxResponses,
		responses:    orderedmap.New[string, string](),
	}
	if err := opts.Apply(a, options); err != nil {
		return nil, err
	}
	return a, nil
}

// Start binds the durable consumer on the response subject. It returns
// false when the subscription cannot be established.
func (a *Output) Start(ctx context.Context, durable string) bool {
	err := a.subscriber.Subscribe(ctx, events.SubjectResponseGenerated,
		bus.HandlerFor(a.handleResponse), bus.WithDurable(durable))
	if err != nil {
		slog.Error("output agent failed to subscribe", slogx.Error(err))
		return false
	}
	return true
}

// Stop releases the agent's subscriptions. Safe to call repeatedly.
func (a *Output) Stop() { a.subscriber.UnsubscribeAll() }

func (a *Output) handleResponse(_ context.Context, p events.ResponseGenerated, d bus.Delivery) error {
	slog.Info("output agent received response", slog.String("input_id", p.InputID))

	a.mu.Lock()
	a.responses.Set(p.InputID, p.FinalResponse)
	for a.responses.Len() > a.maxResponses {
		a.responses.Delete(a.responses.Oldest().Key)
	}
	a.mu.Unlock()

	// ack before the callback so a slow or panicking consumer cannot
	// trigger a redelivery of an already stored response
	if err := d.Ack(); err != nil {
		return err
	}
	if a.callback != nil {
		a.callback(p.InputID, p.FinalResponse)
	} else {
		slog.Info("output", slog.String("input_id", p.InputID), slog.String("response", p.FinalResponse))
	}
	return nil
}

// Response returns the retained response for inputID, if any.
func (a *Output) Response(inputID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.responses.Get(inputID)
}

// Responses returns a copy of every retained response keyed by input_id.
func (a *Output) Responses() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, a.responses.Len())
	for pair := a.responses.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}
