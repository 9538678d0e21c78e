package memory

import (
	"context"
	"crypto/sha1" //nolint:gosec // deterministic embedding, not cryptography
	"math"
	"sort"
	"sync"
)

// Match is one similarity-search result.
type Match struct {
	ID    string
	Text  string
	Score float64
}

// VectorStore is the collaborator interface a similarity-search backend
// must satisfy.
type VectorStore interface {
	// Query returns up to k matches for text, best first.
	Query(ctx context.Context, text string, k int) ([]Match, error)

	// Upsert stores text under id, replacing any previous value.
	Upsert(ctx context.Context, id, text string) error

	// Delete removes the row with the given id, if present.
	Delete(ctx context.Context, id string) error
}

// Embedder converts text into a fixed-size vector.
type Embedder func(text string) []float64

// HashEmbedder is a deterministic embedding over the first eight bytes
// of the text's SHA-1 digest. It carries no semantics but gives stable,
// reproducible similarity rankings, which is what tests and offline
// runs need.
func HashEmbedder(text string) []float64 {
	digest := sha1.Sum([]byte(text)) //nolint:gosec
	vec := make([]float64, 8)
	for i := 0; i < 8; i++ {
		vec[i] = float64(digest[i]) / 255
	}
	return vec
}

// InMem is an in-process VectorStore with cosine ranking. It fills the
// similarity-search collaborator slot when no external backend is
// configured.
type InMem struct {
	embed Embedder

	mu   sync.RWMutex
	docs map[string]inMemDoc
}

type inMemDoc struct {
	text string
	vec  []float64
}

// NewInMem creates an in-process vector store. A nil embedder defaults
// to HashEmbedder.
func NewInMem(embed Embedder) *InMem {
	if embed == nil {
		embed = HashEmbedder
	}
	return &InMem{
		embed: embed,
		docs:  make(map[string]inMemDoc),
	}
}

func (s *InMem) Upsert(_ context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = inMemDoc{text: text, vec: s.embed(text)}
	return nil
}

func (s *InMem) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *InMem) Query(_ context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	query := s.embed(text)

	s.mu.RLock()
	matches := make([]Match, 0, len(s.docs))
	for id, doc := range s.docs {
		matches = append(matches, Match{ID: id, Text: doc.text, Score: Cosine(query, doc.vec)})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// IDs returns the set of stored row ids. Tests use it to check the 1:1
// correspondence invariant with the recency cache.
func (s *InMem) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Cosine returns the cosine similarity of two vectors, or 0 when the
// lengths differ or either vector is all zeros.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
