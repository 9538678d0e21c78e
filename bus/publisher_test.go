package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casualjim/mycelia/events"
	"github.com/casualjim/mycelia/pkg/uuidx"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// capturingBroker records publishes so serialization can be asserted
// without a transport.
type capturingBroker struct {
	subject string
	data    []byte
	durable bool
	fail    error
}

func (b *capturingBroker) Publish(_ context.Context, subject string, data []byte) error {
	if b.fail != nil {
		return b.fail
	}
	b.subject, b.data, b.durable = subject, data, false
	return nil
}

func (b *capturingBroker) PublishDurable(_ context.Context, subject string, data []byte) (*Receipt, error) {
	if b.fail != nil {
		return nil, b.fail
	}
	b.subject, b.data, b.durable = subject, data, true
	return &Receipt{Stream: "TEST", Sequence: 1}, nil
}

func (b *capturingBroker) Subscribe(context.Context, string, Handler, ...opts.Option[SubOptions]) (Subscription, error) {
	return nil, errors.New("not implemented")
}

func TestPublisherSerialization(t *testing.T) {
	ctx := context.Background()

	t.Run("raw bytes pass through unchanged", func(t *testing.T) {
		broker := &capturingBroker{}
		pub := NewPublisher(broker)
		receipt, err := pub.Publish(ctx, "evt.test.raw", []byte{0x01, 0x02}, true)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02}, broker.data)
		assert.Equal(t, uint64(1), receipt.Sequence)
	})

	t.Run("strings are sent as bytes", func(t *testing.T) {
		broker := &capturingBroker{}
		pub := NewPublisher(broker)
		_, err := pub.Publish(ctx, "evt.test.str", "hello", false)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(broker.data))
		assert.False(t, broker.durable)
	})

	t.Run("payloads validate before encoding", func(t *testing.T) {
		broker := &capturingBroker{}
		pub := NewPublisher(broker)
		_, err := pub.Publish(ctx, events.SubjectInputReceived, events.InputReceived{UserInput: "hi"}, true)
		require.Error(t, err)

		var perr *PublishError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, events.SubjectInputReceived, perr.Subject)
	})

	t.Run("payloads publish on their canonical subject", func(t *testing.T) {
		broker := &capturingBroker{}
		pub := NewPublisher(broker)
		payload := events.InputReceived{
			UserInput: "hi",
			InputID:   uuidx.NewString(),
			Timestamp: strfmt.DateTime(time.Now().UTC()),
		}
		receipt, err := pub.PublishPayload(ctx, payload, true)
		require.NoError(t, err)
		require.NotNil(t, receipt)
		assert.Equal(t, events.SubjectInputReceived, broker.subject)
		assert.Equal(t, payload.InputID, gjson.GetBytes(broker.data, "input_id").String())
	})

	t.Run("ad-hoc maps get a timestamp stamped", func(t *testing.T) {
		broker := &capturingBroker{}
		pub := NewPublisher(broker)
		_, err := pub.Publish(ctx, "evt.test.map", map[string]any{"reward": 0.5}, false)
		require.NoError(t, err)
		assert.True(t, gjson.GetBytes(broker.data, "timestamp").Exists())
	})

	t.Run("existing timestamps are preserved", func(t *testing.T) {
		broker := &capturingBroker{}
		pub := NewPublisher(broker)
		_, err := pub.Publish(ctx, "evt.test.map", map[string]any{"timestamp": "then"}, false)
		require.NoError(t, err)
		assert.Equal(t, "then", gjson.GetBytes(broker.data, "timestamp").String())
	})

	t.Run("transport failures surface as PublishError", func(t *testing.T) {
		cause := &TransportError{Op: "publish", Subject: "evt.test.fail", Err: errors.New("broker down")}
		broker := &capturingBroker{fail: cause}
		pub := NewPublisher(broker)
		_, err := pub.Publish(ctx, "evt.test.fail", "x", true)
		require.Error(t, err)

		var perr *PublishError
		require.ErrorAs(t, err, &perr)
		var terr *TransportError
		assert.ErrorAs(t, err, &terr)
	})
}
