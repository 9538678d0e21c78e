package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/casualjim/mycelia/pkg/uuidx"
	"github.com/fogfish/opts"
)

const defaultMaxDeliver = 5

// LocalOptions tunes the in-process broker.
type LocalOptions struct {
	// Stream is the stream name reported in receipts.
	Stream string

	// MaxDeliver caps redelivery attempts per message, mirroring the
	// server-side consumer setting.
	MaxDeliver int
}

var (
	// WithStream sets the stream name reported in receipts.
	WithStream = opts.ForName[LocalOptions, string]("Stream")

	// WithMaxDeliver caps redelivery attempts per message.
	WithMaxDeliver = opts.ForName[LocalOptions, int]("MaxDeliver")
)

// Local creates an in-process Broker with JetStream-equivalent semantics:
// per-subject retained streams, named durable cursors that survive
// unsubscribe, nak redelivery with a delivery cap, and queue-group load
// balancing. Tests and offline runs use it in place of a server.
func Local(options ...opts.Option[LocalOptions]) Broker {
	o := LocalOptions{Stream: "LOCAL", MaxDeliver: defaultMaxDeliver}
	if err := opts.Apply(&o, options); err != nil {
		panic(err)
	}
	return &localBroker{
		stream:     o.Stream,
		maxDeliver: o.MaxDeliver,
		retained:   make(map[string][]*storedMsg),
		consumers:  make(map[string]*durableConsumer),
		liveSubs:   make(map[string][]*liveSub),
	}
}

type storedMsg struct {
	subject string
	data    []byte
	seq     uint64
}

type localBroker struct {
	stream     string
	maxDeliver int

	mu        sync.Mutex
	seq       uint64
	retained  map[string][]*storedMsg     // durable stream, per subject
	consumers map[string]*durableConsumer // keyed subject|durable
	liveSubs  map[string][]*liveSub       // best-effort bindings
}

func (b *localBroker) Publish(ctx context.Context, subject string, data []byte) error {
	if subject == "" {
		return &ValidationError{Subject: subject, Err: errors.New("subject is required")}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.fanOutLocked(&storedMsg{subject: subject, data: data, seq: b.seq}, false)
	return nil
}

func (b *localBroker) PublishDurable(ctx context.Context, subject string, data []byte) (*Receipt, error) {
	if subject == "" {
		return nil, &ValidationError{Subject: subject, Err: errors.New("subject is required")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "publish", Subject: subject, Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msg := &storedMsg{subject: subject, data: data, seq: b.seq}
	b.retained[subject] = append(b.retained[subject], msg)
	b.fanOutLocked(msg, true)
	return &Receipt{Stream: b.stream, Sequence: msg.seq}, nil
}

// fanOutLocked distributes a message to live best-effort subscribers and,
// for retained messages, to every durable consumer bound to the subject.
func (b *localBroker) fanOutLocked(msg *storedMsg, retained bool) {
	if retained {
		for _, c := range b.consumers {
			if c.subject == msg.subject {
				c.enqueue(msg)
			}
		}
	}
	var queues map[string]bool
	for _, s := range b.liveSubs[msg.subject] {
		if s.queue == "" {
			s.deliver(msg)
			continue
		}
		// one delivery per queue group
		if queues == nil {
			queues = make(map[string]bool)
		}
		if !queues[s.queue] {
			queues[s.queue] = true
			b.queueMember(msg.subject, s.queue).deliver(msg)
		}
	}
}

func (b *localBroker) queueMember(subject, queue string) *liveSub {
	members := make([]*liveSub, 0, 4)
	for _, s := range b.liveSubs[subject] {
		if s.queue == queue {
			members = append(members, s)
		}
	}
	c := b.queueRR(subject + "|" + queue)
	return members[int(c)%len(members)]
}

var queueCounters sync.Map

func (b *localBroker) queueRR(key string) uint64 {
	v, _ := queueCounters.LoadOrStore(key, new(uint64))
	return atomic.AddUint64(v.(*uint64), 1) - 1
}

func (b *localBroker) Subscribe(ctx context.Context, subject string, h Handler, options ...opts.Option[SubOptions]) (Subscription, error) {
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
	if o.Durable == "" {
		return b.subscribeLive(ctx, subject, h, o.Queue)
	}
	return b.subscribeDurable(ctx, subject, h, o)
}

func (b *localBroker) subscribeDurable(ctx context.Context, subject string, h Handler, o SubOptions) (Subscription, error) {
	b.mu.Lock()
	key := subject + "|" + o.Durable
	c, ok := b.consumers[key]
	if !ok {
		c = newDurableConsumer(subject, o.Durable, o.Queue, b.maxDeliver)
		// a new durable consumer starts at the beginning of the retained
		// stream, like DeliverAll
		for _, msg := range b.retained[subject] {
			c.enqueue(msg)
		}
		b.consumers[key] = c
	}
	b.mu.Unlock()

	member := &consumerMember{id: uuidx.NewString(), ctx: ctx, handler: h}
	if err := c.attach(member, o.Queue); err != nil {
		return nil, err
	}
	return &localSubscription{
		id:      member.id,
		onClose: func() error { c.detach(member.id); return nil },
	}, nil
}

func (b *localBroker) subscribeLive(ctx context.Context, subject string, h Handler, queue string) (Subscription, error) {
	sub := &liveSub{
		id:      uuidx.NewString(),
		queue:   queue,
		ctx:     ctx,
		ch:      make(chan *storedMsg, 50),
		handler: h,
	}
	b.mu.Lock()
	b.liveSubs[subject] = append(b.liveSubs[subject], sub)
	b.mu.Unlock()
	go sub.forward()
	return &localSubscription{
		id: sub.id,
		onClose: func() error {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.liveSubs[subject]
			for i, s := range subs {
				if s.id == sub.id {
					b.liveSubs[subject] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			sub.close()
			return nil
		},
	}, nil
}

type localSubscription struct {
	id      string
	once    sync.Once
	onClose func() error
}

func (s *localSubscription) ID() string { return s.id }

func (s *localSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() { err = s.onClose() })
	return err
}

// liveSub is a best-effort binding: a buffered channel drained by a
// forwarding goroutine, dropping nothing unless the subscriber falls
// behind the buffer.
type liveSub struct {
	id      string
	queue   string
	ctx     context.Context
	ch      chan *storedMsg
	handler Handler
	closed  sync.Once
}

func (s *liveSub) deliver(msg *storedMsg) {
	select {
	case s.ch <- msg:
	default:
		// slow subscriber: best-effort semantics allow the drop
	}
}

func (s *liveSub) close() {
	s.closed.Do(func() { close(s.ch) })
}

func (s *liveSub) forward() {
	for {
		select {
		case msg, ok := <-s.ch:
			if !ok {
				return
			}
			s.handler(s.ctx, &liveDelivery{msg: msg})
		case <-s.ctx.Done():
			return
		}
	}
}

// liveDelivery carries a best-effort message. Ack and Nak are no-ops
// because nothing is retained for redelivery.
type liveDelivery struct {
	msg *storedMsg
}

func (d *liveDelivery) Subject() string { return d.msg.subject }
func (d *liveDelivery) Data() []byte    { return d.msg.data }
func (d *liveDelivery) Ack() error      { return nil }
func (d *liveDelivery) Nak() error      { return nil }

type consumerMember struct {
	id      string
	ctx     context.Context
	handler Handler
}

// durableConsumer is a named persistent cursor over a subject's retained
// stream. It outlives its bindings: detaching the last member stops
// delivery but keeps the cursor, and the next attach resumes where the
// previous binding left off.
type durableConsumer struct {
	subject    string
	name       string
	queue      string
	maxDeliver int

	mu        sync.Mutex
	cond      *sync.Cond
	mailbox    []*storedMsg  // mailbox: retained backlog plus appended publishes
	cursor    int           // next mailbox index to deliver
	redeliver []*pendingMsg // nak'd messages, delivered before new ones
	members   []*consumerMember
	rr        int
	running   bool
}

type pendingMsg struct {
	msg        *storedMsg
	deliveries int
}

func newDurableConsumer(subject, name, queue string, maxDeliver int) *durableConsumer {
	c := &durableConsumer{
		subject:    subject,
		name:       name,
		queue:      queue,
		maxDeliver: maxDeliver,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *durableConsumer) enqueue(msg *storedMsg) {
	c.mu.Lock()
	c.mailbox = append(c.mailbox, msg)
	c.mu.Unlock()
	c.cond.Signal()
}

func (c *durableConsumer) attach(m *consumerMember, queue string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.members) > 0 {
		if c.queue == "" || queue != c.queue {
			return fmt.Errorf("durable %q already bound on %s", c.name, c.subject)
		}
	} else if c.queue == "" {
		c.queue = queue
	}
	c.members = append(c.members, m)
	if !c.running {
		c.running = true
		go c.run()
	}
	c.cond.Signal()
	return nil
}

func (c *durableConsumer) detach(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.members {
		if m.id == id {
			c.members = append(c.members[:i], c.members[i+1:]...)
			break
		}
	}
	c.cond.Broadcast()
}

func (c *durableConsumer) run() {
	for {
		c.mu.Lock()
		for len(c.members) > 0 && len(c.redeliver) == 0 && c.cursor >= len(c.mailbox) {
			c.cond.Wait()
		}
		if len(c.members) == 0 {
			c.running = false
			c.mu.Unlock()
			return
		}
		var pm *pendingMsg
		if len(c.redeliver) > 0 {
			pm = c.redeliver[0]
			c.redeliver = c.redeliver[1:]
		} else {
			pm = &pendingMsg{msg: c.mailbox[c.cursor]}
			c.cursor++
		}
		member := c.members[c.rr%len(c.members)]
		c.rr++
		c.mu.Unlock()

		pm.deliveries++
		d := &durableDelivery{pm: pm, consumer: c}
		member.handler(member.ctx, d)
		if !d.resolved.Load() {
			// neither acked nor nak'd within the delivery: the broker-side
			// ack timeout would redeliver, so we do too
			c.requeue(pm)
		}
	}
}

func (c *durableConsumer) requeue(pm *pendingMsg) {
	if pm.deliveries >= c.maxDeliver {
		return
	}
	c.mu.Lock()
	c.redeliver = append(c.redeliver, pm)
	c.mu.Unlock()
	c.cond.Signal()
}

type durableDelivery struct {
	pm       *pendingMsg
	consumer *durableConsumer
	resolved atomic.Bool
}

func (d *durableDelivery) Subject() string { return d.pm.msg.subject }
func (d *durableDelivery) Data() []byte    { return d.pm.msg.data }

func (d *durableDelivery) Ack() error {
	d.resolved.CompareAndSwap(false, true)
	return nil
}

func (d *durableDelivery) Nak() error {
	if d.resolved.CompareAndSwap(false, true) {
		d.consumer.requeue(d.pm)
	}
	return nil
}
