// Package llm adapts an eino chat model to the Completion port used by AI
// nodes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

var _ ports.Completion = (*Completion)(nil)

// Config selects an OpenAI-compatible endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Completion implements ports.Completion on top of an eino chat model.
type Completion struct {
	model model.BaseChatModel
}

// New creates a Completion backed by the OpenAI chat API (or any endpoint
// speaking it, via BaseURL).
func New(ctx context.Context, cfg Config) (*Completion, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	mc := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		mc.MaxTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		temperature := cfg.Temperature
		mc.Temperature = &temperature
	}

	m, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}
	return NewFromModel(m), nil
}

// NewFromModel wraps any eino chat model.
func NewFromModel(m model.BaseChatModel) *Completion {
	return &Completion{model: m}
}

// Complete sends the system prompt and the user message and returns the
// reply text. The tool names are listed in the system prompt; function
// calling is not used.
func (c *Completion) Complete(ctx context.Context, systemPrompt, userMessage string, tools []string) (string, error) {
	var messages []*schema.Message
	if prompt := buildSystemPrompt(systemPrompt, tools); prompt != "" {
		messages = append(messages, schema.SystemMessage(prompt))
	}
	messages = append(messages, schema.UserMessage(userMessage))

	out, err := c.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("error generating reply: %w", err)
	}
	if out == nil {
		return "", errors.New("empty reply")
	}
	return strings.TrimSpace(out.Content), nil
}

func buildSystemPrompt(prompt string, tools []string) string {
	prompt = strings.TrimSpace(prompt)
	if len(tools) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("Ferramentas disponíveis: ")
	b.WriteString(strings.Join(tools, ", "))
	return b.String()
}
