package main

import (
	"context"
	"errors"
	"strings"

	sftypes "github.com/cyber-nic/scaffold/libs/types"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const ollamaPrefix = sftypes.OllamaPrefix

var errEmptyResponse = errors.New("model returned no choices")

// ModelFactory builds the provider for model using the caller's key.
type ModelFactory func(ctx context.Context, model, apiKey string) (llms.Model, error)

// newModelFactory picks a provider from the model name: "gemini-*" goes to
// Google AI, "ollama:<name>" to a local ollama server, everything else to
// OpenAI.
func newModelFactory(ollamaURL string) ModelFactory {
	return func(ctx context.Context, model, apiKey string) (llms.Model, error) {
		switch {
		case strings.HasPrefix(model, ollamaPrefix):
			opts := []ollama.Option{ollama.WithModel(providerModel(model))}
			if ollamaURL != "" {
				opts = append(opts, ollama.WithServerURL(ollamaURL))
			}
			llm, err := ollama.New(opts...)
			if err != nil {
				return nil, err
			}
			return llm, nil

		case strings.HasPrefix(model, "gemini-"):
			llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
			if err != nil {
				return nil, err
			}
			return llm, nil

		default:
			llm, err := openai.New(openai.WithToken(apiKey), openai.WithModel(model))
			if err != nil {
				return nil, err
			}
			return llm, nil
		}
	}
}

// providerModel strips the routing prefix from model.
func providerModel(model string) string {
	return strings.TrimPrefix(model, ollamaPrefix)
}

func requiresKey(model string) bool {
	return sftypes.RequiresAPIKey(model)
}

func pickModel(requested, fallback string) string {
	if m := strings.TrimSpace(requested); m != "" {
		return m
	}
	return fallback
}

// toMessageContent prepends the system prompt and maps transcript roles.
func toMessageContent(system string, messages []sftypes.Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages)+1)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == sftypes.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}
	return content
}

func extractResponseContent(resp *llms.ContentResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
