package memory

import (
	"context"
	"sync"
)

const defaultWindowSize = 3

// Window recalls the most recent interactions verbatim, with no
// similarity search and no durable backend. It is the minimal Recaller
// for deployments that only need short conversational context.
type Window struct {
	size int

	mu      sync.Mutex
	history []string
}

// NewWindow creates a window recaller keeping the last size
// interactions. A non-positive size falls back to the default of 3.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &Window{size: size}
}

func (w *Window) Source() string { return "window_memory" }

func (w *Window) StoreInteraction(_ context.Context, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = append(w.history, text)
	if len(w.history) > w.size {
		w.history = w.history[len(w.history)-w.size:]
	}
	return nil
}

// RetrieveContext returns the retained history in chronological order.
// The prompt is ignored: recency is the only relevance signal.
func (w *Window) RetrieveContext(context.Context, string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.history))
	copy(out, w.history)
	return out
}
