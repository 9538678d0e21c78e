// Package bus is the reliability layer between agents and the message
// broker. It provides durable at-least-once delivery with manual,
// message-scoped acknowledgment on top of NATS JetStream, plus an
// in-process implementation with the same semantics for tests and
// offline runs.
//
// Design decisions:
//   - Manual ack only: the framework never acknowledges a message on a
//     handler's behalf on success paths. Auto-ack would mask handler bugs
//     that silently drop retries, so every handler must terminate in
//     exactly one Ack or Nak. HandlerFor enforces this with a safety net:
//     a handler that returns without resolving gets its message nak'd and
//     the bug logged.
//   - Decode once: payloads are deserialized and schema-validated at the
//     bus boundary by HandlerFor. Handlers receive typed values, never raw
//     bytes.
//   - Uniform failure policy: payloads that cannot become valid through
//     redelivery (malformed JSON, schema violations) are acked and dropped
//     with a logged error. Only plausibly transient failures (a backend
//     being down) are nak'd for broker redelivery.
//   - Explicit dependency injection: a Broker is constructed once and
//     handed to every Publisher, Subscriber and agent. There is no
//     package-level connection state.
//   - Single binding: at most one live binding exists per
//     (subject, durable name) pair, except for queue-group members which
//     share one consumer to scale horizontally.
//
// Interface hierarchy:
//   - Broker: publish and subscribe primitives over one transport
//     └── Subscription: one live binding, explicit lifecycle
//     └── Delivery: one delivered message, Ack/Nak exactly once
//   - Publisher: typed payload serialization over a Broker
//   - Subscriber: subscription lifecycle management over a Broker
//
// Example usage:
//
//	broker, err := bus.JetStream(nc, js)
//	if err != nil {
//	    return err
//	}
//	sub := bus.NewSubscriber(broker)
//	err = sub.Subscribe(ctx, events.SubjectInputReceived,
//	    bus.HandlerFor(func(ctx context.Context, in events.InputReceived, d bus.Delivery) error {
//	        // ... one unit of domain work ...
//	        return d.Ack()
//	    }),
//	    bus.WithDurable("memory_listener"),
//	)
package bus
