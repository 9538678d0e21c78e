// Package memory implements context retrieval for memory agents. Tiered
// is the main implementation: a bounded recency cache over a
// similarity-search store, backed by the durable fact graph as the
// system of record. Window is a minimal alternative that recalls the
// last N interactions with no backends at all.
//
// Design decisions:
//   - The graph is the system of record. The vector tier is a cache that
//     can be rebuilt lazily from graph reads; losing it loses nothing.
//   - 1:1 correspondence: every text in the recency structure has exactly
//     one row in the vector store and vice versa. Eviction removes the
//     vector row synchronously, never the reverse.
//   - Graceful degradation: a failing backend contributes zero results to
//     a retrieval instead of failing it. Failures are logged as resource
//     errors and the other tier carries the query.
//   - Single owner: a Tiered instance guards its recency structure with
//     an internal lock, but the design assumes one memory agent owns one
//     cache instance.
package memory
