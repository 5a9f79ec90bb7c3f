// Package providers implements the model backends behind the harness
// Provider port.
package providers

import (
	"context"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/ZanzyTHEbar/sangamner-ai/sai/config"
	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/toolconv"
)

// Supported provider types.
const (
	TypeGemini    = "gemini"
	TypeAnthropic = "anthropic"
	TypeOpenAI    = "openai"
	TypeOllama    = "ollama"
	TypeRules     = "rules"
)

const defaultMaxTokens = 1024

// NewProvider creates the provider selected by cfg.Provider.Type.
func NewProvider(ctx context.Context, cfg *config.Config) (ports.Provider, error) {
	p := cfg.Provider
	switch p.Type {
	case TypeGemini, "":
		return NewGeminiProvider(ctx, cfg.ProviderAPIKey(), p.Model)
	case TypeAnthropic:
		return NewAnthropicProvider(p.BaseURL, cfg.ProviderAPIKey(), p.Model)
	case TypeOpenAI:
		return NewOpenAIProvider(p.BaseURL, cfg.ProviderAPIKey(), p.Model)
	case TypeOllama:
		return NewOllamaProvider(p.BaseURL, p.Model)
	case TypeRules:
		return NewRulesProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", p.Type)
	}
}

// toolDecls converts tool specs to the canonical MCP form.
func toolDecls(specs []ports.ToolSpec) ([]mcptypes.Tool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	return toolconv.ToMCPAll(specs)
}

func maxTokens(opts ports.Options) int {
	if opts.MaxNewTokens > 0 {
		return opts.MaxNewTokens
	}
	return defaultMaxTokens
}
