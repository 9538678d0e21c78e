package memory

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/casualjim/mycelia/bus"
	"github.com/casualjim/mycelia/graph"
	"github.com/casualjim/mycelia/pkg/slogx"
	"github.com/fogfish/opts"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Recaller answers retrieve-context queries for a memory agent.
type Recaller interface {
	// StoreInteraction records one interaction text.
	StoreInteraction(ctx context.Context, text string) error

	// RetrieveContext returns relevant facts for prompt, deduplicated,
	// best first.
	RetrieveContext(ctx context.Context, prompt string) []string

	// Source names this recaller in MemoryRetrieved payloads.
	Source() string
}

const (
	defaultCapacity = 100
	defaultTopK     = 3
)

// Tiered blends a bounded recency cache over a similarity-search store
// with the durable fact graph. See the package documentation for the
// invariants it maintains.
type Tiered struct {
	store    VectorStore
	dal      graph.DAL
	capacity int
	topK     int

	// guards lru and counter; the cache is designed for a single owning
	// agent but the lock keeps concurrent callers correct
	mu      sync.Mutex
	counter uint64
	lru     *orderedmap.OrderedMap[string, string] // text -> vector row id, oldest first
}

var (
	// Capacity bounds the number of live cache entries.
	Capacity = opts.ForName[Tiered, int]("capacity")

	// TopK bounds the number of facts a retrieval returns.
	TopK = opts.ForName[Tiered, int]("topK")
)

// NewTiered creates a tiered cache over the given vector store and fact
// graph.
func NewTiered(store VectorStore, dal graph.DAL, options ...opts.Option[Tiered]) (*Tiered, error) {
	t := &Tiered{
		store:    store,
		dal:      dal,
		capacity: defaultCapacity,
		topK:     defaultTopK,
		lru:      orderedmap.New[string, string](),
	}
	if err := opts.Apply(t, options); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tiered) Source() string { return "tiered_memory" }

// StoreInteraction inserts text into the recency cache (promoting it if
// already present) and independently persists it as a fact node. The
// two writes are not transactional: the graph is the system of record
// and the cache rebuilds lazily from it, so a crash between them costs
// nothing.
func (t *Tiered) StoreInteraction(ctx context.Context, text string) error {
	t.mu.Lock()
	t.addLocked(ctx, text)
	t.mu.Unlock()

	if err := t.dal.MergeNode(ctx, graph.LabelFact, map[string]any{"text": text}); err != nil {
		return &bus.ResourceError{Source: "graph", Err: err}
	}
	return nil
}

// RetrieveContext queries the vector tier for up to top-k matches and
// fills any shortfall from the graph, most recent first. Graph-sourced
// facts are inserted into the cache so repeated queries become cache
// hits. The result is deduplicated, order preserved from first
// occurrence, never longer than top-k.
func (t *Tiered) RetrieveContext(ctx context.Context, prompt string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	results := t.vectorMatchesLocked(ctx, prompt)
	if len(results) < t.topK {
		facts := t.graphFacts(ctx, t.topK-len(results))
		for _, fact := range facts {
			t.addLocked(ctx, fact)
		}
		results = append(results, facts...)
	}

	seen := make(map[string]bool, len(results))
	merged := results[:0]
	for _, item := range results {
		if !seen[item] {
			seen[item] = true
			merged = append(merged, item)
		}
	}
	return merged
}

// Keys returns the cached texts in recency order, least recent first.
func (t *Tiered) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, t.lru.Len())
	for pair := t.lru.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of live cache entries.
func (t *Tiered) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

func (t *Tiered) vectorMatchesLocked(ctx context.Context, prompt string) []string {
	matches, err := t.store.Query(ctx, prompt, t.topK)
	if err != nil {
		slog.Error("vector store query failed, degrading to graph",
			slogx.Error(&bus.ResourceError{Source: "vector", Err: err}),
		)
		return nil
	}
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Text)
		// a hit counts as an access
		if _, present := t.lru.Get(m.Text); present {
			_ = t.lru.MoveToBack(m.Text)
		}
	}
	return texts
}

func (t *Tiered) graphFacts(ctx context.Context, limit int) []string {
	facts, err := t.dal.RecentFacts(ctx, limit)
	if err != nil {
		slog.Error("graph query failed, degrading to vector matches",
			slogx.Error(&bus.ResourceError{Source: "graph", Err: err}),
		)
		return nil
	}
	return facts
}

// addLocked inserts text into the cache or promotes it, then evicts
// down to capacity. Eviction deletes the corresponding vector row
// synchronously to keep the two structures in 1:1 correspondence.
func (t *Tiered) addLocked(ctx context.Context, text string) {
	if _, present := t.lru.Get(text); present {
		_ = t.lru.MoveToBack(text)
		return
	}

	id := strconv.FormatUint(t.counter, 10)
	t.counter++
	if err := t.store.Upsert(ctx, id, text); err != nil {
		slog.Error("failed to add text to vector store", slogx.Error(err))
		return
	}
	t.lru.Set(text, id)

	for t.lru.Len() > t.capacity {
		oldest := t.lru.Oldest()
		t.lru.Delete(oldest.Key)
		if err := t.store.Delete(ctx, oldest.Value); err != nil {
			slog.Error("failed to delete evicted vector row",
				slog.String("id", oldest.Value),
				slogx.Error(err),
			)
		}
	}
}
