package harnessports

import (
	"context"
)

// PromptMessage represents a single chat message used to build prompts.
type PromptMessage struct {
	Role      string // "system", "user", "assistant", "tool"
	Content   string
	ToolCalls []ToolCall // native calls behind an assistant message; Content holds their text form
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // high-level system instructions
	Messages []PromptMessage   // ordered chat transcript for this turn
	Tools    []ToolSpec        // tool declarations available to the model
	Meta     map[string]string // lightweight metadata for tracing and rule-based providers
}

// Options controls sampling and limits for one provider call.
type Options struct {
	MaxNewTokens int
	Temperature  float32
	TopP         float32
	Seed         int
	Stop         []string
	// TimeoutMs applies to the provider call only (not the whole turn)
	TimeoutMs int
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add accumulates another usage report into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text      string
	ToolCalls []ToolCall // native tool calls, when the backend supports them
	Raw       any        // raw provider payload for debugging
	Usage     *Usage
}

// Provider is the abstraction for all LLM backends.
type Provider interface {
	Name() string
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}

// Pinger is implemented by providers that can cheaply verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
