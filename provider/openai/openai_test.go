package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g := New("", option.WithAPIKey("test"))
	require.NotNil(t, g)
	assert.NotNil(t, g.client)
	assert.Equal(t, "gpt-4o-mini", g.model)

	g = New("gpt-4o", option.WithAPIKey("test"))
	assert.Equal(t, "gpt-4o", g.model)
}

func TestGenerate(t *testing.T) {
	t.Run("returns the first choice trimmed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"id": "chatcmpl-test",
				"object": "chat.completion",
				"model": "gpt-4o-mini",
				"choices": [{
					"index": 0,
					"finish_reason": "stop",
					"message": {"role": "assistant", "content": "  hello there  "}
				}]
			}`))
		}))
		defer srv.Close()

		g := New("", option.WithAPIKey("test"), option.WithBaseURL(srv.URL+"/"))
		out, err := g.Generate(context.Background(), "hi")
		require.NoError(t, err)
		assert.Equal(t, "hello there", out)
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": "chatcmpl-test", "object": "chat.completion", "choices": []}`))
		}))
		defer srv.Close()

		g := New("", option.WithAPIKey("test"), option.WithBaseURL(srv.URL+"/"))
		_, err := g.Generate(context.Background(), "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no choices")
	})

	t.Run("transport failure is wrapped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		g := New("", option.WithAPIKey("test"), option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
		_, err := g.Generate(context.Background(), "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat completion")
	})
}
