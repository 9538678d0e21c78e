package provider

import "context"

// Generator produces a complete response for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Static answers every prompt with the same canned text. It backs
// offline runs and tests that exercise the pipeline without a model.
type Static struct {
	Response string
}

func (s Static) Generate(_ context.Context, _ string) (string, error) {
	if s.Response == "" {
		return "I don't have a response for that yet.", nil
	}
	return s.Response, nil
}
