package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/toolconv"
)

// OllamaProvider talks to a local Ollama server.
type OllamaProvider struct {
	client *api.Client
	model  string
}

// NewOllamaProvider creates an Ollama provider.
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.1:latest"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	return &OllamaProvider{client: api.NewClient(parsedURL, http.DefaultClient), model: model}, nil
}

func (p *OllamaProvider) Name() string { return TypeOllama }

// Complete implements ports.Provider.
func (p *OllamaProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	decls, err := toolDecls(in.Tools)
	if err != nil {
		return ports.Completion{}, err
	}

	messages := make([]api.Message, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: in.System})
	}
	for _, m := range in.Messages {
		role := m.Role
		if role == "tool" {
			role = "user"
		}
		messages = append(messages, api.Message{Role: role, Content: m.Content})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": opts.Temperature,
			"num_predict": maxTokens(opts),
		},
	}
	if len(decls) > 0 {
		req.Tools = toolconv.ToOllama(decls)
	}

	var final api.ChatResponse
	if err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		final = resp
		return nil
	}); err != nil {
		return ports.Completion{}, fmt.Errorf("ollama chat: %w", err)
	}

	completion := ports.Completion{
		Text: final.Message.Content,
		Raw:  final,
		Usage: &ports.Usage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
			TotalTokens:      final.PromptEvalCount + final.EvalCount,
		},
	}
	for _, call := range final.Message.ToolCalls {
		args, err := json.Marshal(call.Function.Arguments)
		if err != nil {
			return ports.Completion{}, fmt.Errorf("ollama tool call args: %w", err)
		}
		completion.ToolCalls = append(completion.ToolCalls, ports.ToolCall{Name: call.Function.Name, Args: args})
	}
	return completion, nil
}

// Ping lists local models.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := p.client.List(ctx)
	return err
}

var (
	_ ports.Provider = (*OllamaProvider)(nil)
	_ ports.Pinger   = (*OllamaProvider)(nil)
)
