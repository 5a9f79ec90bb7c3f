package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	internal "github.com/ZanzyTHEbar/sangamner-ai/sai"
	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/toolconv"
)

// contentGenerator is the part of *genai.Models the provider uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider talks to the Gemini API.
type GeminiProvider struct {
	models contentGenerator
	model  string
}

// NewGeminiProvider creates a Gemini provider. The API key is required.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key is required (set GOOGLE_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newGeminiProvider(client.Models, model), nil
}

func newGeminiProvider(models contentGenerator, model string) *GeminiProvider {
	if model == "" {
		model = internal.DefaultGeminiModel
	}
	return &GeminiProvider{models: models, model: model}
}

func (p *GeminiProvider) Name() string { return TypeGemini }

// Complete implements ports.Provider.
func (p *GeminiProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	decls, err := toolDecls(in.Tools)
	if err != nil {
		return ports.Completion{}, err
	}

	temperature := opts.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(maxTokens(opts)),
		Tools:           toolconv.ToGemini(decls),
	}
	if in.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: in.System}}}
	}

	resp, err := p.models.GenerateContent(ctx, p.model, geminiContents(in.Messages), config)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("gemini generate: %w", err)
	}

	completion := ports.Completion{Raw: resp}
	if resp.UsageMetadata != nil {
		completion.Usage = &ports.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return completion, nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return ports.Completion{}, fmt.Errorf("gemini function call args: %w", err)
			}
			completion.ToolCalls = append(completion.ToolCalls, ports.ToolCall{Name: part.FunctionCall.Name, Args: args})
			continue
		}
		text.WriteString(part.Text)
	}
	completion.Text = text.String()
	return completion, nil
}

// geminiContents maps the transcript onto Gemini roles. Native tool calls
// become function call parts and the observations answering them one
// function response turn; everything else travels as text.
func geminiContents(messages []ports.PromptMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	answering := false
	for _, m := range messages {
		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			parts := make([]*genai.Part, 0, len(m.ToolCalls))
			for _, call := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(call.Args, &args)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: call.Name, Args: args}})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			answering = true
			continue
		}
		if m.Role == "tool" && answering {
			if name, result, ok := ports.ParseObservation(m.Content); ok {
				part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
					Name:     name,
					Response: map[string]any{"output": result},
				}}
				if last := contents[len(contents)-1]; last.Role == "user" && last.Parts[0].FunctionResponse != nil {
					last.Parts = append(last.Parts, part)
				} else {
					contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{part}})
				}
				continue
			}
		}
		answering = false

		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	return contents
}

var _ ports.Provider = (*GeminiProvider)(nil)
