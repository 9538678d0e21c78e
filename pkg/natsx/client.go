package natsx

import (
	"errors"
	"fmt"
	"os"

	"github.com/nats-io/nats.go"
)

// DefaultStream is the stream retaining every durable subject.
const DefaultStream = "MYCELIA_EVENTS"

// NewClient creates a new connection to a NATS server using the URL specified
// in the NATS_URL environment variable. The connection is configured with a
// client name "mycelia" and compression enabled.
//
// Returns:
//   - *nats.Conn: A pointer to the established NATS connection.
//   - error: An error if the connection could not be established.
func NewClient(opts ...nats.Option) (*nats.Conn, error) {
	if len(opts) == 0 {
		opts = append(opts, nats.Name("mycelia"), nats.Compression(true))
	}
	return nats.Connect(os.Getenv("NATS_URL"), opts...)
}

// EnsureStream creates the durable stream over the given subjects if it
// does not exist yet, and returns the JetStream context either way. The
// stream uses limits retention with a per-subject message cap and
// discards the oldest messages first, so it never refuses publishes.
func EnsureStream(nc *nats.Conn, name string, subjects []string) (nats.JetStreamContext, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	_, err = js.StreamInfo(name)
	if err == nil {
		return js, nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return nil, fmt.Errorf("stream info %s: %w", name, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:              name,
		Subjects:          subjects,
		Retention:         nats.LimitsPolicy,
		Storage:           nats.FileStorage,
		MaxMsgsPerSubject: 10000,
		Discard:           nats.DiscardOld,
	})
	if err != nil {
		return nil, fmt.Errorf("add stream %s: %w", name, err)
	}
	return js, nil
}
