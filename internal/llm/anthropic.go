package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicMessager is the part of the Anthropic SDK the client uses.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicClient implements Client for Anthropic Claude models.
type AnthropicClient struct {
	messages AnthropicMessager
	config   *Config
}

// NewAnthropicClient creates a client authenticated with apiKey.
func NewAnthropicClient(config *Config, apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	// Retries are handled by Retrying so the SDK's own retry loop is disabled.
	c := anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return NewAnthropicClientWith(&c.Messages, config), nil
}

// NewAnthropicClientWith wraps an existing messages service.
func NewAnthropicClientWith(messages AnthropicMessager, config *Config) *AnthropicClient {
	if config == nil {
		config = DefaultAnthropicConfig()
	}
	return &AnthropicClient{messages: messages, config: config}
}

// Complete generates text for prompt.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	resp, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(float64(c.config.Temperature)),
	})
	if err != nil {
		return "", Classify(fmt.Errorf("failed to create message: %w", err))
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &ModelError{Kind: ErrModelUnavailable, Retryable: true, Err: fmt.Errorf("no text blocks in response")}
	}
	return sb.String(), nil
}

// Close is a no-op; the SDK holds no long-lived resources.
func (c *AnthropicClient) Close() error {
	return nil
}
