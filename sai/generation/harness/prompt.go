package harness

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

// FinalAnswerAction is the action name a model uses to end the loop in the
// text tool protocol.
const FinalAnswerAction = "Final Answer"

// PromptBuilder assembles model-ready inputs from system text, messages, and tools.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// Build flattens system + chat messages into a Provider PromptInput. When
// tools are offered, the text tool protocol is appended to the system
// instructions so that backends without native tool calling can still act.
func (b *PromptBuilder) Build(system string, messages []ports.PromptMessage, toolSpecs []ports.ToolSpec, meta map[string]string) ports.PromptInput {
	// Normalize newlines and trim whitespace to keep transcripts stable
	norm := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

	normalized := make([]ports.PromptMessage, len(messages))
	for i, m := range messages {
		normalized[i] = ports.PromptMessage{Role: m.Role, Content: norm(m.Content), ToolCalls: m.ToolCalls}
	}

	sys := norm(system)
	if len(toolSpecs) > 0 {
		if sys != "" {
			sys += "\n\n"
		}
		sys += toolProtocol(toolSpecs)
	}

	return ports.PromptInput{
		System:   sys,
		Messages: normalized,
		Tools:    toolSpecs,
		Meta:     meta,
	}
}

func toolProtocol(specs []ports.ToolSpec) string {
	var sb strings.Builder
	sb.WriteString("You have access to the following tools:\n\n")
	for _, spec := range specs {
		fmt.Fprintf(&sb, "%s: %s, args: %s\n", spec.Name, spec.Description, compactSchema(spec.JSONSchema))
	}
	sb.WriteString("\nTo use a tool, reply with exactly one JSON blob and nothing else:\n")
	sb.WriteString("```json\n{\"action\": \"<tool name>\", \"action_input\": {<tool arguments>}}\n```\n")
	sb.WriteString("When you can answer the user, reply with:\n")
	fmt.Fprintf(&sb, "```json\n{\"action\": %q, \"action_input\": \"<your answer>\"}\n```", FinalAnswerAction)
	return sb.String()
}

func compactSchema(schema []byte) string {
	s := strings.Join(strings.Fields(string(schema)), " ")
	if s == "" {
		return "{}"
	}
	return s
}

// renderToolCall writes a model tool call back into the transcript in the
// same shape the text protocol asks for.
func renderToolCall(call ports.ToolCall) string {
	args := strings.TrimSpace(string(call.Args))
	if args == "" {
		args = "{}"
	}
	return fmt.Sprintf("```json\n{\"action\": %q, \"action_input\": %s}\n```", call.Name, args)
}

func renderObservation(record ports.ToolCallRecord) string {
	return fmt.Sprintf("%s%s: %s", ports.ObservationPrefix, record.Name, record.Result)
}

func renderCorrection(err error) string {
	return fmt.Sprintf(
		"Your previous reply could not be used: %v. Reply with a single JSON blob that either calls one of the available tools or gives the %s.",
		err, FinalAnswerAction,
	)
}
