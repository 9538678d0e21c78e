package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/mycelia/pkg/uuidx"
	"github.com/fogfish/opts"
	"github.com/nats-io/nats.go"
)

type jetstreamBroker struct {
	nc *nats.Conn
	js nats.JetStreamContext

	// live (subject, durable) bindings owned by this process. The server
	// enforces the invariant across processes; this catches double binds
	// early with a better error.
	bindings *haxmap.Map[string, string]
}

// JetStream creates a Broker over an established NATS connection and
// JetStream context. The connection is shared, not owned: closing it is
// the caller's responsibility.
func JetStream(nc *nats.Conn, js nats.JetStreamContext) (Broker, error) {
	if nc == nil || !nc.IsConnected() {
		return nil, errors.New("nats connection must be established")
	}
	if js == nil {
		return nil, errors.New("jetstream context is required")
	}
	return &jetstreamBroker{
		nc:       nc,
		js:       js,
		bindings: haxmap.New[string, string](),
	}, nil
}

func (b *jetstreamBroker) Publish(ctx context.Context, subject string, data []byte) error {
	if subject == "" {
		return &ValidationError{Subject: subject, Err: errors.New("subject is required")}
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return &TransportError{Op: "publish", Subject: subject, Err: err}
	}
	return nil
}

func (b *jetstreamBroker) PublishDurable(ctx context.Context, subject string, data []byte) (*Receipt, error) {
	if subject == "" {
		return nil, &ValidationError{Subject: subject, Err: errors.New("subject is required")}
	}
	ack, err := b.js.Publish(subject, data, nats.Context(ctx))
	if err != nil {
		return nil, &TransportError{Op: "publish", Subject: subject, Err: err}
	}
	return &Receipt{Stream: ack.Stream, Sequence: ack.Sequence}, nil
}

func (b *jetstreamBroker) Subscribe(ctx context.Context, subject string, h Handler, options ...opts.Option[SubOptions]) (Subscription, error) {
	if subject == "" {
		return nil, &ValidationError{Subject: subject, Err: errors.New("subject is required")}
	}
	if h == nil {
		return nil, errors.New("handler is required")
	}
	var o SubOptions
	if err := opts.Apply(&o, options); err != nil {
		return nil, err
	}

	id := uuidx.NewString()
	bindKey := ""
	if o.Durable != "" && o.Queue == "" {
		bindKey = subject + "|" + o.Durable
		if _, loaded := b.bindings.GetOrSet(bindKey, id); loaded {
			return nil, fmt.Errorf("durable %q already bound on %s", o.Durable, subject)
		}
	}

	durable := o.Durable != ""
	cb := func(m *nats.Msg) {
		h(ctx, &natsDelivery{msg: m, durable: durable})
	}

	var (
		sub *nats.Subscription
		err error
	)
	switch {
	case durable:
		sub, err = b.durableSubscribe(subject, o.Durable, o.Queue, cb)
	case o.Queue != "":
		sub, err = b.nc.QueueSubscribe(subject, o.Queue, cb)
	default:
		sub, err = b.nc.Subscribe(subject, cb)
	}
	if err != nil {
		if bindKey != "" {
			b.bindings.Del(bindKey)
		}
		return nil, &TransportError{Op: "subscribe", Subject: subject, Err: err}
	}

	return &natsSubscription{
		id:  id,
		sub: sub,
		onClose: func() {
			if bindKey != "" {
				b.bindings.Del(bindKey)
			}
		},
	}, nil
}

// durableSubscribe provisions the durable consumer if it does not exist
// yet and binds to it. Binding (rather than letting the library create
// the consumer) matters: the client deletes consumers it created when a
// subscription is unsubscribed, which would destroy the cursor. A bound
// consumer survives unsubscribe, so the cursor persists across process
// restarts.
func (b *jetstreamBroker) durableSubscribe(subject, durable, queue string, cb nats.MsgHandler) (*nats.Subscription, error) {
	stream, err := b.js.StreamNameBySubject(subject)
	if err != nil {
		return nil, fmt.Errorf("no stream retains %s: %w", subject, err)
	}

	if _, err := b.js.ConsumerInfo(stream, durable); err != nil {
		if !errors.Is(err, nats.ErrConsumerNotFound) {
			return nil, err
		}
		_, err = b.js.AddConsumer(stream, &nats.ConsumerConfig{
			Durable:        durable,
			DeliverSubject: nats.NewInbox(),
			DeliverGroup:   queue,
			FilterSubject:  subject,
			AckPolicy:      nats.AckExplicitPolicy,
			DeliverPolicy:  nats.DeliverAllPolicy,
		})
		if err != nil {
			return nil, err
		}
	}

	if queue != "" {
		return b.js.QueueSubscribe(subject, queue, cb, nats.Bind(stream, durable), nats.ManualAck())
	}
	return b.js.Subscribe(subject, cb, nats.Bind(stream, durable), nats.ManualAck())
}

type natsSubscription struct {
	id      string
	sub     *nats.Subscription
	onClose func()
	closed  atomic.Bool
}

func (s *natsSubscription) ID() string { return s.id }

func (s *natsSubscription) Unsubscribe() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.onClose()
	// Unsubscribe drops this binding only. The durable consumer's cursor
	// stays on the server for the next binding with the same name.
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return &TransportError{Op: "unsubscribe", Subject: s.sub.Subject, Err: err}
	}
	return nil
}

type natsDelivery struct {
	msg      *nats.Msg
	durable  bool
	resolved atomic.Bool
}

func (d *natsDelivery) Subject() string { return d.msg.Subject }
func (d *natsDelivery) Data() []byte    { return d.msg.Data }

func (d *natsDelivery) Ack() error {
	if !d.durable || !d.resolved.CompareAndSwap(false, true) {
		return nil
	}
	return d.msg.Ack()
}

func (d *natsDelivery) Nak() error {
	if !d.durable || !d.resolved.CompareAndSwap(false, true) {
		return nil
	}
	return d.msg.Nak()
}
