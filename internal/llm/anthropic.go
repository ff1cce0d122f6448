package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
)

const (
	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultMaxTokens = 1024
)

const classifyPrompt = `You extract durable memories from a chat message for a personal assistant.
Reply with one JSON object and nothing else:
{"hasImportantInfo": bool, "memories": [{"type": "fact|preference|decision|event|learning", "content": string, "importance": number between 0 and 1, "structuredData": object (optional)}]}
Only keep information worth remembering beyond this conversation. Small talk yields {"hasImportantInfo": false, "memories": []}.`

const summarizePrompt = `You compress conversation history for a personal assistant. Keep names, decisions, preferences, commitments and open tasks. Drop pleasantries. Reply with the summary only.`

// AnthropicPort implements Port with the Anthropic Messages API.
type AnthropicPort struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicPort creates a port. Extra options are passed to the client.
func NewAnthropicPort(apiKey, model string, maxTokens int, opts ...option.RequestOption) *AnthropicPort {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if apiKey != "" {
		opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicPort{client: &client, model: model, maxTokens: int64(maxTokens)}
}

// New returns the configured port, or nil when extraction is switched off
// (provider "none").
func New(cfg config.LLMConfig) (Port, error) {
	switch strings.ToLower(cfg.Provider) {
	case "none", "off":
		return nil, nil
	case "", "anthropic":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, errors.New("anthropic: no API key (set llm.apiKey or ANTHROPIC_API_KEY)")
		}
		return NewAnthropicPort(key, cfg.Model, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func (p *AnthropicPort) Classify(ctx context.Context, req ExtractionRequest) (*ExtractionResponse, error) {
	var b strings.Builder
	if req.RecentContext != "" {
		b.WriteString("Recent context:\n")
		b.WriteString(req.RecentContext)
		b.WriteString("\n\n")
	}
	b.WriteString("Message:\n")
	b.WriteString(req.Message)

	text, err := p.complete(ctx, classifyPrompt, b.String(), p.maxTokens)
	if err != nil {
		return nil, &ClassificationError{Err: err}
	}
	resp, err := ParseExtraction(text)
	if err != nil {
		return nil, &ClassificationError{Err: err}
	}
	return resp, nil
}

func (p *AnthropicPort) Summarize(ctx context.Context, text string, maxTokens int) (string, error) {
	limit := p.maxTokens
	if maxTokens > 0 {
		limit = int64(maxTokens)
	}
	prompt := fmt.Sprintf("Summarize in at most %d tokens:\n\n%s", limit, text)
	out, err := p.complete(ctx, summarizePrompt, prompt, limit)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (p *AnthropicPort) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
	})
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}
