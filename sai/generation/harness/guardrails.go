package harness

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

// Guardrails enforces the tool allowlist and argument schemas for one turn.
type Guardrails struct {
	tools         map[string]ports.Tool // allowed tools by name
	validateArgs  bool
	outputFilters []*regexp.Regexp // regex patterns for masking output
	jsonValidator *JSONValidator
}

// NewGuardrails allows exactly the given tools. Argument schemas are only
// enforced when validateArgs is set.
func NewGuardrails(tools []ports.Tool, validateArgs bool) *Guardrails {
	allowed := make(map[string]ports.Tool, len(tools))
	for _, tool := range tools {
		allowed[tool.Name()] = tool
	}
	return &Guardrails{
		tools:        allowed,
		validateArgs: validateArgs,
		outputFilters: []*regexp.Regexp{
			regexp.MustCompile(`(?i)password[:=]\s*\S+`),
			regexp.MustCompile(`(?i)api[_-]?key[:=]\s*\S+`),
			regexp.MustCompile(`(?i)secret[:=]\s*\S+`),
		},
		jsonValidator: sharedValidator,
	}
}

// Tool returns the allowed tool with the given name, or nil.
func (g *Guardrails) Tool(name string) ports.Tool {
	return g.tools[name]
}

// ValidateToolCall checks if a tool call is allowed and well-formed.
func (g *Guardrails) ValidateToolCall(call ports.ToolCall) error {
	tool, ok := g.tools[call.Name]
	if !ok {
		return fmt.Errorf("unknown tool %q, available tools: %s", call.Name, strings.Join(g.names(), ", "))
	}

	if !json.Valid(call.Args) {
		return fmt.Errorf("tool arguments are not valid JSON")
	}

	if g.validateArgs {
		if err := g.jsonValidator.Validate(call.Args, tool.Schema()); err != nil {
			return fmt.Errorf("invalid arguments for %s: %w", call.Name, err)
		}
	}

	return nil
}

// CoerceArgs wraps a bare JSON string argument into an object when the
// tool takes a single property, e.g. "car rentals" -> {"query": "car rentals"}.
func (g *Guardrails) CoerceArgs(name string, args json.RawMessage) json.RawMessage {
	var s string
	if err := json.Unmarshal(args, &s); err != nil {
		return args
	}
	tool, ok := g.tools[name]
	if !ok {
		return args
	}

	var schema struct {
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		return args
	}

	var field string
	switch {
	case len(schema.Properties) == 1:
		for k := range schema.Properties {
			field = k
		}
	case len(schema.Required) == 1:
		field = schema.Required[0]
	default:
		return args
	}

	wrapped, err := json.Marshal(map[string]string{field: s})
	if err != nil {
		return args
	}
	return wrapped
}

// SanitizeOutput removes or masks sensitive information from output.
func (g *Guardrails) SanitizeOutput(output string) string {
	sanitized := output

	// Apply regex filters to mask sensitive data
	for _, filter := range g.outputFilters {
		sanitized = filter.ReplaceAllString(sanitized, "[REDACTED]")
	}

	return sanitized
}

func (g *Guardrails) names() []string {
	names := make([]string, 0, len(g.tools))
	for name := range g.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sharedValidator caches compiled schemas across turns.
var sharedValidator = NewJSONValidator()

// JSONValidator handles JSON schema validation.
type JSONValidator struct {
	schemas sync.Map // schema text -> *gojsonschema.Schema
}

// NewJSONValidator creates a new JSON validator.
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{}
}

// Validate checks if JSON data conforms to a schema.
func (v *JSONValidator) Validate(data json.RawMessage, schema []byte) error {
	if len(schema) == 0 {
		return nil // no schema to validate against
	}

	// First check basic JSON validity
	if !json.Valid(data) {
		return fmt.Errorf("data is not valid JSON")
	}

	compiled, err := v.compile(schema)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errors []string
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (v *JSONValidator) compile(schema []byte) (*gojsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := v.schemas.Load(key); ok {
		return cached.(*gojsonschema.Schema), nil
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, err
	}
	v.schemas.Store(key, compiled)
	return compiled, nil
}
