// Package openai implements provider.Generator on the OpenAI chat
// completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const instructions = "You are a concise assistant. Use the provided facts when they are relevant and answer directly."

// Generator calls the chat completions endpoint with a system prompt
// and the caller's prompt as a single user message.
type Generator struct {
	client *openai.Client
	model  string
}

// New creates a Generator for the given model. An empty model falls
// back to gpt-4o-mini. Request options are passed through to the
// client, so credentials and base URL follow the usual environment
// variables unless overridden here.
func New(model string, options ...option.RequestOption) *Generator {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &Generator{
		client: openai.NewClient(options...),
		model:  model,
	}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	chat, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructions),
			openai.UserMessage(prompt),
		}),
		Model:       openai.F(g.model),
		N:           openai.Int(1),
		Temperature: openai.Float(0.1),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(chat.Choices[0].Message.Content), nil
}
