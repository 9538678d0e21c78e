package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	t.Run("returns the configured response", func(t *testing.T) {
		out, err := Static{Response: "canned"}.Generate(context.Background(), "anything")
		require.NoError(t, err)
		assert.Equal(t, "canned", out)
	})

	t.Run("zero value still answers", func(t *testing.T) {
		out, err := Static{}.Generate(context.Background(), "anything")
		require.NoError(t, err)
		assert.NotEmpty(t, out)
	})
}

func TestGeneratorFunc(t *testing.T) {
	var gotPrompt string
	g := GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "echo: " + prompt, nil
	})

	out, err := g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", gotPrompt)
	assert.Equal(t, "echo: hello", out)
}
