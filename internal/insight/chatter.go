package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Chatter sends a single system+user exchange to a language model and
// returns the concatenated text reply.
type Chatter interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// AnthropicConfig configures an AnthropicChatter.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	// BaseURL overrides the API endpoint. Empty uses the SDK default.
	BaseURL string
}

// AnthropicChatter is a Chatter backed by the Anthropic Messages API.
type AnthropicChatter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// placeholderKey is the value shipped in sample env files.
const placeholderKey = "your_key_here"

// NewAnthropicChatter returns a Chatter for cfg, or nil when no API key is
// configured. Callers treat a nil Chatter as "no model available".
func NewAnthropicChatter(cfg AnthropicConfig) *AnthropicChatter {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" || key == placeholderKey {
		return nil
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &AnthropicChatter{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(maxTokens),
	}
}

// NewChatter is NewAnthropicChatter returned as a Chatter, nil when no key
// is configured.
func NewChatter(cfg AnthropicConfig) Chatter {
	if c := NewAnthropicChatter(cfg); c != nil {
		return c
	}
	return nil
}

// Chat implements Chatter.
func (c *AnthropicChatter) Chat(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
