package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/casualjim/mycelia/bus"
	"github.com/casualjim/mycelia/events"
	"github.com/casualjim/mycelia/pkg/uuidx"
	"github.com/go-openapi/strfmt"
)

// Input is the entry point of the pipeline. It does not consume any
// subject; callers hand it raw user input and it publishes the
// originating event.
type Input struct {
	publisher *bus.Publisher
}

// NewInput creates the input agent over the given broker.
func NewInput(broker bus.Broker) *Input {
	return &Input{publisher: bus.NewPublisher(broker)}
}

// Process mints an input_id for userInput and publishes InputReceived
// durably. It returns the id once the broker has acknowledged
// persistence, so a non-error return means downstream agents will see
// the event at least once.
func (a *Input) Process(ctx context.Context, userInput string) (string, error) {
	inputID := uuidx.NewString()
	payload := events.InputReceived{
		UserInput: userInput,
		InputID:   inputID,
		Timestamp: strfmt.DateTime(time.Now().UTC()),
	}

	if _, err := a.publisher.PublishPayload(ctx, payload, true); err != nil {
		return "", err
	}
	slog.Info("published input", slog.String("input_id", inputID))
	return inputID, nil
}
