package memory

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDAL is an in-memory graph.DAL with switchable failure.
type fakeDAL struct {
	facts []string
	fail  error
}

func (d *fakeDAL) MergeNode(_ context.Context, label string, props map[string]any) error {
	if d.fail != nil {
		return d.fail
	}
	if text, ok := props["text"].(string); ok {
		for _, f := range d.facts {
			if f == text {
				return nil
			}
		}
		// most recent first
		d.facts = append([]string{text}, d.facts...)
	}
	return nil
}

func (d *fakeDAL) RecentFacts(_ context.Context, limit int) ([]string, error) {
	if d.fail != nil {
		return nil, d.fail
	}
	if limit > len(d.facts) {
		limit = len(d.facts)
	}
	return append([]string(nil), d.facts[:limit]...), nil
}

// failingVector wraps InMem and fails queries on demand.
type failingVector struct {
	*InMem
	failQuery bool
}

func (s *failingVector) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if s.failQuery {
		return nil, errors.New("vector backend down")
	}
	return s.InMem.Query(ctx, text, k)
}

func cacheIDs(t *Tiered) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, t.lru.Len())
	for pair := t.lru.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Value)
	}
	sort.Strings(ids)
	return ids
}

func TestTieredEviction(t *testing.T) {
	ctx := context.Background()

	t.Run("holds exactly the capacity most recent items", func(t *testing.T) {
		store := NewInMem(nil)
		tiered, err := NewTiered(store, &fakeDAL{}, Capacity(2))
		require.NoError(t, err)

		for _, text := range []string{"a", "b", "c"} {
			require.NoError(t, tiered.StoreInteraction(ctx, text))
			// 1:1 correspondence after every operation
			assert.Equal(t, store.IDs(), cacheIDs(tiered))
		}

		assert.Equal(t, []string{"b", "c"}, tiered.Keys())
		assert.Equal(t, 2, tiered.Len())
	})

	t.Run("storing an existing text promotes instead of duplicating", func(t *testing.T) {
		store := NewInMem(nil)
		tiered, err := NewTiered(store, &fakeDAL{}, Capacity(2))
		require.NoError(t, err)

		for _, text := range []string{"a", "b", "a", "c"} {
			require.NoError(t, tiered.StoreInteraction(ctx, text))
		}

		// "a" was promoted before "c" arrived, so "b" was the LRU victim
		assert.Equal(t, []string{"a", "c"}, tiered.Keys())
	})
}

func TestTieredRetrieveContext(t *testing.T) {
	ctx := context.Background()

	t.Run("bounded and deduplicated", func(t *testing.T) {
		store := NewInMem(nil)
		dal := &fakeDAL{}
		tiered, err := NewTiered(store, dal, TopK(3))
		require.NoError(t, err)

		for _, text := range []string{"one", "two", "three", "four"} {
			require.NoError(t, tiered.StoreInteraction(ctx, text))
		}

		result := tiered.RetrieveContext(ctx, "two")
		assert.LessOrEqual(t, len(result), 3)
		seen := make(map[string]bool)
		for _, item := range result {
			assert.False(t, seen[item], "duplicate %q in result", item)
			seen[item] = true
		}
	})

	t.Run("graph fills the shortfall most recent first", func(t *testing.T) {
		store := NewInMem(nil)
		dal := &fakeDAL{facts: []string{"newest", "older", "oldest"}}
		tiered, err := NewTiered(store, dal, TopK(3))
		require.NoError(t, err)

		result := tiered.RetrieveContext(ctx, "anything")
		assert.Equal(t, []string{"newest", "older", "oldest"}, result)

		// fallback facts were inserted, so they are cache hits now
		assert.ElementsMatch(t, []string{"newest", "older", "oldest"}, tiered.Keys())
		assert.Equal(t, store.IDs(), cacheIDs(tiered))
	})

	t.Run("vector failure degrades to graph facts", func(t *testing.T) {
		store := &failingVector{InMem: NewInMem(nil), failQuery: true}
		dal := &fakeDAL{facts: []string{"fact1", "fact2", "fact3"}}
		tiered, err := NewTiered(store, dal, TopK(3))
		require.NoError(t, err)

		result := tiered.RetrieveContext(ctx, "prompt")
		assert.Equal(t, []string{"fact1", "fact2", "fact3"}, result)
	})

	t.Run("graph failure degrades to vector matches", func(t *testing.T) {
		store := NewInMem(nil)
		dal := &fakeDAL{}
		tiered, err := NewTiered(store, dal, TopK(3))
		require.NoError(t, err)

		require.NoError(t, tiered.StoreInteraction(ctx, "cached"))
		dal.fail = errors.New("graph down")

		result := tiered.RetrieveContext(ctx, "cached")
		assert.Equal(t, []string{"cached"}, result)
	})

	t.Run("store failure does not hide the graph write", func(t *testing.T) {
		store := NewInMem(nil)
		dal := &fakeDAL{fail: errors.New("graph down")}
		tiered, err := NewTiered(store, dal)
		require.NoError(t, err)

		err = tiered.StoreInteraction(ctx, "text")
		require.Error(t, err)
		// the cache write still happened; the graph rebuilds it later
		assert.Equal(t, []string{"text"}, tiered.Keys())
	})
}

func TestWindow(t *testing.T) {
	ctx := context.Background()

	t.Run("recalls the last n interactions in order", func(t *testing.T) {
		w := NewWindow(3)
		for _, text := range []string{"a", "b", "c", "d"} {
			require.NoError(t, w.StoreInteraction(ctx, text))
		}
		assert.Equal(t, []string{"b", "c", "d"}, w.RetrieveContext(ctx, "ignored"))
	})

	t.Run("empty window recalls nothing", func(t *testing.T) {
		w := NewWindow(0)
		assert.Empty(t, w.RetrieveContext(ctx, "ignored"))
	})
}

func TestInMemVectorStore(t *testing.T) {
	ctx := context.Background()

	t.Run("exact text ranks first", func(t *testing.T) {
		store := NewInMem(nil)
		require.NoError(t, store.Upsert(ctx, "1", "alpha"))
		require.NoError(t, store.Upsert(ctx, "2", "beta"))
		require.NoError(t, store.Upsert(ctx, "3", "gamma"))

		matches, err := store.Query(ctx, "beta", 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "beta", matches[0].Text)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	})

	t.Run("delete removes the row", func(t *testing.T) {
		store := NewInMem(nil)
		require.NoError(t, store.Upsert(ctx, "1", "alpha"))
		require.NoError(t, store.Delete(ctx, "1"))
		assert.Empty(t, store.IDs())
	})

	t.Run("embedding is deterministic", func(t *testing.T) {
		assert.Equal(t, HashEmbedder("same"), HashEmbedder("same"))
		assert.NotEqual(t, HashEmbedder("same"), HashEmbedder("different"))
	})
}
