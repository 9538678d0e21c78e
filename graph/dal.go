// Package graph is the long-term fact store: the durable system of
// record behind the tiered memory cache. The DAL interface is the
// narrow surface the rest of the system depends on; SQLite provides a
// local reference implementation, and Cypher adapts any graph database
// that speaks a Cypher-like query language.
package graph

import "context"

// Row is one result row from a graph query.
type Row map[string]any

// Labels used by the scheduler and memory subsystem. Facts are the raw
// interaction texts; Note and DailySummary nodes are written by the
// scheduler's summary loops.
const (
	LabelFact         = "Fact"
	LabelNote         = "Note"
	LabelDailySummary = "DailySummary"
)

// DAL is the data access layer for the fact graph.
type DAL interface {
	// MergeNode creates or updates a node with the given label and
	// properties. Merging the same properties twice is a no-op.
	MergeNode(ctx context.Context, label string, props map[string]any) error

	// RecentFacts returns up to limit fact texts, most recent first.
	RecentFacts(ctx context.Context, limit int) ([]string, error)
}

// Querier executes Cypher-like queries against a remote graph database.
// It is the collaborator interface a graph driver binding must satisfy.
type Querier interface {
	Query(ctx context.Context, query string, params map[string]any) ([]Row, error)
}

// Cypher adapts a Querier into a DAL using Cypher MERGE/MATCH
// statements, for deployments backed by a real graph database.
type Cypher struct {
	querier Querier
}

// NewCypher creates a DAL over the given query executor.
func NewCypher(q Querier) *Cypher {
	return &Cypher{querier: q}
}

func (c *Cypher) MergeNode(ctx context.Context, label string, props map[string]any) error {
	_, err := c.querier.Query(ctx, "MERGE (n:"+label+" $props)", map[string]any{"props": props})
	return err
}

func (c *Cypher) RecentFacts(ctx context.Context, limit int) ([]string, error) {
	rows, err := c.querier.Query(ctx,
		"MATCH (n:"+LabelFact+") RETURN n.text AS fact ORDER BY n.created_at DESC LIMIT $limit",
		map[string]any{"limit": limit},
	)
	if err != nil {
		return nil, err
	}
	facts := make([]string, 0, len(rows))
	for _, row := range rows {
		if fact, ok := row["fact"].(string); ok && fact != "" {
			facts = append(facts, fact)
		}
	}
	return facts, nil
}
