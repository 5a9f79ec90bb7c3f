package harnessports

import (
	"context"
	"encoding/json"
	"strings"
)

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	JSONSchema  []byte // JSON schema for args
}

// ToolCall represents a model-requested function call with JSON arguments.
type ToolCall struct {
	Name string
	Args json.RawMessage
}

// ObservationPrefix starts every tool observation fed back to the model,
// followed by "<tool name>: <result>".
const ObservationPrefix = "Observation from "

// ToolCallRecord is one executed tool call and its raw observation.
type ToolCallRecord struct {
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args"`
	Result string          `json:"result"`
}

// Tool executes a tool call. Call is total: failures are reported inside
// the returned string so the reasoning loop always has something to observe.
type Tool interface {
	Name() string
	Description() string
	Schema() []byte
	Call(ctx context.Context, args json.RawMessage) string
}

// SpecOf builds the provider-facing declaration for a tool.
func SpecOf(t Tool) ToolSpec {
	return ToolSpec{
		Name:        t.Name(),
		Description: t.Description(),
		JSONSchema:  t.Schema(),
	}
}

// ParseObservation splits an observation message into tool name and result.
func ParseObservation(content string) (name, result string, ok bool) {
	rest, found := strings.CutPrefix(content, ObservationPrefix)
	if !found {
		return "", "", false
	}
	name, result, ok = strings.Cut(rest, ": ")
	return name, result, ok
}
