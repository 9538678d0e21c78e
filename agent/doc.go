// Package agent implements the event handlers that make up the
// pipeline: Input mints input events, Memory answers them with recalled
// context, LLM turns context into responses, Output delivers responses,
// and Reward scores bot messages after the fact. Agents only ever talk
// to each other through bus subjects, correlated by input_id.
//
// Design decisions:
//   - One Subscriber per agent: stopping an agent releases exactly its
//     own bindings, never another agent's.
//   - Start returns false instead of panicking when the subscription
//     cannot be established, so a partially degraded process keeps the
//     agents that did come up.
//   - Every handler path resolves its delivery exactly once. Transient
//     failures nak for broker redelivery; payloads that can never
//     succeed are dropped by the bus boundary before the handler runs.
//   - Collaborators are interfaces (Recaller, Generator, Reactions) so
//     variants swap without touching the event flow.
package agent
