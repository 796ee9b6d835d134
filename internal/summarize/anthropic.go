package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/DeafMist/noise-to-signal/internal/config"
)

// ErrMissingAPIKey is returned when no Anthropic key is configured.
var ErrMissingAPIKey = errors.New("ANTHROPIC_API_KEY missing in environment")

// AnthropicGenerator calls the Anthropic Messages API.
type AnthropicGenerator struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
}

// NewAnthropicGenerator builds a generator from summarizer config.
func NewAnthropicGenerator(cfg *config.Summarizer) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &AnthropicGenerator{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

func (g *AnthropicGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(g.temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := g.client.Messages.New(ctx, params)
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
		return "", errors.New("anthropic returned no text")
	}
	return out.String(), nil
}
