package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/casualjim/mycelia/events"
	"github.com/casualjim/mycelia/pkg/slogx"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Publisher serializes typed payloads and sends them through a Broker.
// It is stateless beyond the broker reference and safe for concurrent
// use.
type Publisher struct {
	broker Broker
}

// NewPublisher creates a Publisher over the given broker.
func NewPublisher(broker Broker) *Publisher {
	if broker == nil {
		panic("bus: publisher requires a broker")
	}
	return &Publisher{broker: broker}
}

// Publish serializes payload and sends it to subject. When durable is
// true the call blocks until the broker acknowledges persistence or ctx
// expires, and the receipt carries the assigned stream sequence. When
// durable is false the send is fire-and-forget and the receipt is nil.
//
// Raw []byte payloads pass through unchanged. Strings are sent as their
// bytes. events.Payload values are validated and encoded canonically;
// anything else is encoded as JSON. Structured payloads missing a
// timestamp get one stamped at publish time.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any, durable bool) (*Receipt, error) {
	data, err := p.serialize(payload)
	if err != nil {
		return nil, &PublishError{Subject: subject, Err: err}
	}

	if durable {
		receipt, err := p.broker.PublishDurable(ctx, subject, data)
		if err != nil {
			return nil, &PublishError{Subject: subject, Err: err}
		}
		slog.Debug("published durable message",
			slog.String("subject", subject),
			slog.Uint64("seq", receipt.Sequence),
			slog.String("stream", receipt.Stream),
		)
		return receipt, nil
	}

	if err := p.broker.Publish(ctx, subject, data); err != nil {
		return nil, &PublishError{Subject: subject, Err: err}
	}
	slog.Debug("published best-effort message", slog.String("subject", subject))
	return nil, nil
}

// PublishPayload publishes an events.Payload on its canonical subject.
func (p *Publisher) PublishPayload(ctx context.Context, payload events.Payload, durable bool) (*Receipt, error) {
	return p.Publish(ctx, payload.Subject(), payload, durable)
}

func (p *Publisher) serialize(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case events.Payload:
		return events.Marshal(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return stampTimestamp(data), nil
	}
}

// stampTimestamp adds a publish-time timestamp to JSON objects that lack
// one, so ad-hoc payloads still satisfy the envelope contract.
func stampTimestamp(data []byte) []byte {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return data
	}
	if gjson.GetBytes(data, "timestamp").Exists() {
		return data
	}
	stamped, err := sjson.SetBytes(data, "timestamp", strfmt.DateTime(time.Now().UTC()).String())
	if err != nil {
		slog.Warn("failed to stamp timestamp", slogx.Error(err))
		return data
	}
	return stamped
}
