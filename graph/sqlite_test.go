package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestGraph(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestSQLiteMergeNode(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and reads back facts", func(t *testing.T) {
		s := openTestGraph(t)
		require.NoError(t, s.MergeNode(ctx, LabelFact, map[string]any{"text": "the sky is blue"}))

		facts, err := s.RecentFacts(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"the sky is blue"}, facts)
	})

	t.Run("merging identical properties is a no-op", func(t *testing.T) {
		s := openTestGraph(t)
		props := map[string]any{"text": "once"}
		require.NoError(t, s.MergeNode(ctx, LabelFact, props))
		require.NoError(t, s.MergeNode(ctx, LabelFact, props))

		facts, err := s.RecentFacts(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, facts, 1)
	})

	t.Run("labels are isolated", func(t *testing.T) {
		s := openTestGraph(t)
		require.NoError(t, s.MergeNode(ctx, LabelFact, map[string]any{"text": "a fact"}))
		require.NoError(t, s.MergeNode(ctx, LabelNote, map[string]any{"text": "a note", "timestamp": "2025-03-14T15:09:26Z"}))

		facts, err := s.RecentFacts(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"a fact"}, facts)

		notes, err := s.NodesByLabel(ctx, LabelNote)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "a note", notes[0]["text"])
	})
}

func TestSQLiteRecentFacts(t *testing.T) {
	ctx := context.Background()

	t.Run("most recent first with limit", func(t *testing.T) {
		s := openTestGraph(t)
		for _, text := range []string{"first", "second", "third"} {
			require.NoError(t, s.MergeNode(ctx, LabelFact, map[string]any{"text": text}))
		}

		facts, err := s.RecentFacts(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"third", "second"}, facts)
	})

	t.Run("non-positive limit yields nothing", func(t *testing.T) {
		s := openTestGraph(t)
		require.NoError(t, s.MergeNode(ctx, LabelFact, map[string]any{"text": "x"}))

		facts, err := s.RecentFacts(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, facts)
	})
}

// recordingQuerier captures queries for the Cypher adapter tests.
type recordingQuerier struct {
	queries []string
	params  []map[string]any
	rows    []Row
	err     error
}

func (q *recordingQuerier) Query(_ context.Context, query string, params map[string]any) ([]Row, error) {
	q.queries = append(q.queries, query)
	q.params = append(q.params, params)
	return q.rows, q.err
}

func TestCypherDAL(t *testing.T) {
	ctx := context.Background()

	t.Run("merge node issues a MERGE", func(t *testing.T) {
		q := &recordingQuerier{}
		dal := NewCypher(q)
		require.NoError(t, dal.MergeNode(ctx, LabelNote, map[string]any{"text": "summary"}))
		require.Len(t, q.queries, 1)
		assert.Contains(t, q.queries[0], "MERGE (n:Note")
	})

	t.Run("recent facts filters empty rows", func(t *testing.T) {
		q := &recordingQuerier{rows: []Row{
			{"fact": "alpha"},
			{"fact": ""},
			{"other": "ignored"},
			{"fact": "beta"},
		}}
		dal := NewCypher(q)
		facts, err := dal.RecentFacts(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta"}, facts)
		assert.Equal(t, map[string]any{"limit": 5}, q.params[0])
	})
}
