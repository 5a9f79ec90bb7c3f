package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/toolconv"
)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider creates an Anthropic provider. Retries are left to
// the orchestrator, so the SDK's own retry loop is disabled.
func NewAnthropicProvider(baseURL, apiKey, model string) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	anthropicModel := anthropic.ModelClaudeSonnet4_5_20250929
	if model != "" {
		anthropicModel = anthropic.Model(model)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	return &AnthropicProvider{client: &client, model: anthropicModel}, nil
}

func (p *AnthropicProvider) Name() string { return TypeAnthropic }

// Complete implements ports.Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	decls, err := toolDecls(in.Tools)
	if err != nil {
		return ports.Completion{}, err
	}

	params := anthropic.MessageNewParams{
		Model:       p.model,
		Messages:    anthropicMessages(in.Messages),
		MaxTokens:   int64(maxTokens(opts)),
		Temperature: anthropic.Float(float64(opts.Temperature)),
	}
	if in.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: in.System}}
	}
	if len(decls) > 0 {
		params.Tools = toolconv.ToAnthropic(decls)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("anthropic messages: %w", err)
	}

	completion := ports.Completion{
		Raw: msg,
		Usage: &ports.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			completion.ToolCalls = append(completion.ToolCalls, ports.ToolCall{Name: block.Name, Args: block.Input})
		}
	}
	completion.Text = text.String()
	return completion, nil
}

// Ping sends a one-token request; the API has no health endpoint.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("anthropic ping failed: %w", err)
	}
	return nil
}

func anthropicMessages(messages []ports.PromptMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		// tool observations travel as user text
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}

var (
	_ ports.Provider = (*AnthropicProvider)(nil)
	_ ports.Pinger   = (*AnthropicProvider)(nil)
)
