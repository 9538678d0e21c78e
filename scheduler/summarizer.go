package scheduler

import (
	"context"
	"strings"

	"github.com/casualjim/mycelia/provider"
)

// Summarizer condenses recent conversation into summary notes.
// Summarize produces the short periodic note; Reflect produces the
// longer daily reflection.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
	Reflect(ctx context.Context, text string) (string, error)
}

// Truncate is the zero-dependency Summarizer: it keeps the first
// MaxWords words of the input. It never fails.
type Truncate struct {
	MaxWords int
}

func (t Truncate) Summarize(_ context.Context, text string) (string, error) {
	return firstWords(text, t.max()), nil
}

func (t Truncate) Reflect(_ context.Context, text string) (string, error) {
	// reflections get more room than periodic notes
	return firstWords(text, 5*t.max()), nil
}

func (t Truncate) max() int {
	if t.MaxWords <= 0 {
		return 10
	}
	return t.MaxWords
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// FromGenerator adapts an inference backend into a Summarizer.
func FromGenerator(g provider.Generator) Summarizer {
	return generatorSummarizer{g: g}
}

type generatorSummarizer struct {
	g provider.Generator
}

func (s generatorSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	return s.g.Generate(ctx, "Summarize the following conversation in one sentence:\n"+text)
}

func (s generatorSummarizer) Reflect(ctx context.Context, text string) (string, error) {
	return s.g.Generate(ctx, "Write a short reflection on the following day of conversation:\n"+text)
}
