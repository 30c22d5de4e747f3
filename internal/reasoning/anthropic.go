package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"bankguard/internal/platform/config"
)

// AnthropicModel completes prompts with the Messages API at temperature 0 so
// repeated validations of the same input are stable.
type AnthropicModel struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic returns Unconfigured when no API key is set.
func NewAnthropic(cfg config.AnthropicConfig) Model {
	if cfg.APIKey == "" {
		return Unconfigured{}
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0))
	return &AnthropicModel{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

func (m *AnthropicModel) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrMalformed)
	}
	return out.String(), nil
}
