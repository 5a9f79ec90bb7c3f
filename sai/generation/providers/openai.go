package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/toolconv"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	return &OpenAIProvider{client: client, model: model}, nil
}

func (p *OpenAIProvider) Name() string { return TypeOpenAI }

// Complete implements ports.Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	decls, err := toolDecls(in.Tools)
	if err != nil {
		return ports.Completion{}, err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, openai.SystemMessage(in.System))
	}
	for _, m := range in.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			// Observations carry no tool_call_id, so they go back as user text.
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(p.model),
		Messages:            messages,
		Temperature:         openai.Float(float64(opts.Temperature)),
		MaxCompletionTokens: openai.Int(int64(maxTokens(opts))),
	}
	if len(decls) > 0 {
		params.Tools = toolconv.ToOpenAI(decls)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("openai chat completion: %w", err)
	}

	completion := ports.Completion{
		Raw: resp,
		Usage: &ports.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	if len(resp.Choices) == 0 {
		return completion, nil
	}
	msg := resp.Choices[0].Message
	completion.Text = msg.Content
	for _, call := range msg.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, ports.ToolCall{
			Name: call.Function.Name,
			Args: []byte(call.Function.Arguments),
		})
	}
	return completion, nil
}

// Ping lists models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai ping failed: %w", err)
	}
	return nil
}

var (
	_ ports.Provider = (*OpenAIProvider)(nil)
	_ ports.Pinger   = (*OpenAIProvider)(nil)
)
