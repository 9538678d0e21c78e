package graph

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLite is a local fact-graph implementation on a single nodes table.
// Node ids are ULIDs, so most-recent-first reads are a primary key scan.
type SQLite struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// OpenSQLite opens or creates the graph database at path. Use ":memory:"
// for an ephemeral store.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}

	s := &SQLite{
		db:      db,
		// monotonic entropy keeps ids ordered even within one millisecond
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0), //nolint:gosec // ids need uniqueness, not secrecy
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate graph db: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id         TEXT PRIMARY KEY,
		label      TEXT NOT NULL,
		props      TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(label, id DESC);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_identity ON nodes(label, props);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// MergeNode inserts a node unless one with the same label and properties
// already exists, matching Cypher MERGE semantics.
func (s *SQLite) MergeNode(ctx context.Context, label string, props map[string]any) error {
	encoded, err := canonicalProps(props)
	if err != nil {
		return fmt.Errorf("encode node props: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, label, props, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(label, props) DO NOTHING`,
		s.newID(), label, encoded, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("merge node %s: %w", label, err)
	}
	return nil
}

// RecentFacts returns up to limit fact texts, most recent first.
func (s *SQLite) RecentFacts(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT props FROM nodes WHERE label = ? ORDER BY id DESC LIMIT ?`,
		LabelFact, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent facts: %w", err)
	}
	defer rows.Close()

	var facts []string
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		var props map[string]any
		if err := json.Unmarshal([]byte(encoded), &props); err != nil {
			return nil, fmt.Errorf("decode fact props: %w", err)
		}
		if text, ok := props["text"].(string); ok && text != "" {
			facts = append(facts, text)
		}
	}
	return facts, rows.Err()
}

// NodesByLabel returns all nodes with the given label, most recent
// first. Used by tests and operational tooling.
func (s *SQLite) NodesByLabel(ctx context.Context, label string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT props FROM nodes WHERE label = ? ORDER BY id DESC`, label,
	)
	if err != nil {
		return nil, fmt.Errorf("query nodes by label: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		var props Row
		if err := json.Unmarshal([]byte(encoded), &props); err != nil {
			return nil, fmt.Errorf("decode node props: %w", err)
		}
		result = append(result, props)
	}
	return result, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// canonicalProps encodes properties deterministically (map keys sorted)
// so the uniqueness index treats equal property sets as equal regardless
// of insertion order.
func canonicalProps(props map[string]any) (string, error) {
	data, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
