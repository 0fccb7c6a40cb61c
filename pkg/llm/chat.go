package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/zavalabs/raft/internal/models"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Endpoint    Endpoint
	Temperature float64
	MaxTokens   int
}

// ChatEngine sends chat completions to one role's deployment.
type ChatEngine struct {
	config ChatConfig
	llm    *openai.LLM
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}

	llm, err := openai.New(config.Endpoint.options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat model for %s: %w", config.Endpoint.Prefix, err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// ForRole builds a ChatEngine from a role's environment prefix.
func ForRole(role models.Role, getenv Getenv, temperature float64, maxTokens int) (*ChatEngine, error) {
	endpoint, err := RoleEndpoint(role, getenv)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ChatConfig{
		Endpoint:    endpoint,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
}

// Deployment returns the deployment name the engine talks to.
func (ce *ChatEngine) Deployment() string { return ce.config.Endpoint.Deployment }

// Complete sends one system+user exchange and returns the assistant text.
func (ce *ChatEngine) Complete(ctx context.Context, system, user string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("chat error: empty response")
	}
	return response.Choices[0].Content, nil
}

// Converse continues a multi-turn conversation and returns the reply.
func (ce *ChatEngine) Converse(ctx context.Context, history []llms.MessageContent) (string, error) {
	response, err := ce.llm.GenerateContent(ctx, history,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("chat error: empty response")
	}
	return response.Choices[0].Content, nil
}

// ConverseStream continues a multi-turn conversation, streaming the reply
// chunk by chunk.
func (ce *ChatEngine) ConverseStream(ctx context.Context, history []llms.MessageContent) (<-chan string, error) {
	resultChan := make(chan string)

	go func() {
		defer close(resultChan)

		_, err := ce.llm.GenerateContent(ctx, history,
			llms.WithTemperature(ce.config.Temperature),
			llms.WithMaxTokens(ce.config.MaxTokens),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				select {
				case resultChan <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		)
		if err != nil {
			resultChan <- fmt.Sprintf("Error: %v", err)
		}
	}()

	return resultChan, nil
}
