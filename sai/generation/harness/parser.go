package harness

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

// ParsedOutput is the interpretation of one text completion: either tool
// calls to run or a final answer.
type ParsedOutput struct {
	ToolCalls []ports.ToolCall
	Final     string
}

// OutputParser handles extracting structured data from model responses.
type OutputParser struct {
	// Start markers of JSON tool call formats models emit in plain text
	arrayPattern     *regexp.Regexp
	toolCallsPattern *regexp.Regexp
	actionPattern    *regexp.Regexp
	fencePattern     *regexp.Regexp
	attemptPatterns  []*regexp.Regexp
}

// NewOutputParser creates a parser with default patterns for common tool call formats.
func NewOutputParser() *OutputParser {
	return &OutputParser{
		// JSON array format: [{"name": "tool", "arguments": {...}}]
		arrayPattern: regexp.MustCompile(`\[\s*\{\s*"name"\s*:`),
		// OpenAI format leaked into content: {"tool_calls": [{"function": {"name": "tool", "arguments": "..."}}]}
		toolCallsPattern: regexp.MustCompile(`\{\s*"tool_calls"\s*:`),
		// Structured chat format: {"action": "tool", "action_input": {...}}
		actionPattern: regexp.MustCompile(`\{\s*"action"\s*:`),
		fencePattern:  regexp.MustCompile("(?s)```(?:json)?\\s*([\\[{].*?)```"),
		attemptPatterns: []*regexp.Regexp{
			regexp.MustCompile(`"action"\s*:`),
			regexp.MustCompile(`"action_input"\s*:`),
			regexp.MustCompile(`"tool_calls"\s*:`),
			regexp.MustCompile(`"arguments"\s*:`),
			regexp.MustCompile("```json"),
		},
	}
}

// Parse interprets a text completion. Plain prose is a final answer; a
// recognizable but broken tool call is reported as ErrMalformedOutput so the
// loop can ask the model again.
func (p *OutputParser) Parse(text string) (ParsedOutput, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParsedOutput{}, fmt.Errorf("%w: empty reply", ErrMalformedOutput)
	}

	if calls := p.ParseToolCalls(trimmed); len(calls) > 0 {
		return ParsedOutput{ToolCalls: calls}, nil
	}

	candidate, ok := p.locateBlob(trimmed)
	if !ok {
		if p.looksLikeToolCall(trimmed) {
			return ParsedOutput{}, fmt.Errorf("%w: tool call syntax could not be located", ErrMalformedOutput)
		}
		return ParsedOutput{Final: trimmed}, nil
	}

	var blob map[string]json.RawMessage
	if err := decodeFirst(candidate, &blob); err != nil {
		if err := decodeFirst(p.fixJSON(candidate), &blob); err != nil {
			return ParsedOutput{}, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedOutput, err)
		}
	}

	if rawAction, ok := blob["action"]; ok {
		return p.parseAction(rawAction, blob["action_input"])
	}

	// {"name": "tool", "arguments": {...}} or {"name": ..., "parameters": {...}}
	if rawName, ok := blob["name"]; ok {
		var name string
		if err := json.Unmarshal(rawName, &name); err == nil && name != "" {
			args := blob["arguments"]
			if args == nil {
				args = blob["parameters"]
			}
			return ParsedOutput{ToolCalls: []ports.ToolCall{{Name: name, Args: normalizeArgs(args)}}}, nil
		}
	}

	return ParsedOutput{}, fmt.Errorf("%w: JSON reply has no action", ErrMalformedOutput)
}

func (p *OutputParser) parseAction(rawAction, rawInput json.RawMessage) (ParsedOutput, error) {
	var action string
	if err := json.Unmarshal(rawAction, &action); err != nil || strings.TrimSpace(action) == "" {
		return ParsedOutput{}, fmt.Errorf("%w: action must be a non-empty string", ErrMalformedOutput)
	}
	action = strings.TrimSpace(action)

	if isFinalAction(action) {
		var answer string
		if err := json.Unmarshal(rawInput, &answer); err != nil {
			// Non-string final answers are passed through as compact JSON
			answer = strings.TrimSpace(string(rawInput))
		}
		answer = strings.TrimSpace(answer)
		if answer == "" || answer == "null" {
			return ParsedOutput{}, fmt.Errorf("%w: empty final answer", ErrMalformedOutput)
		}
		return ParsedOutput{Final: answer}, nil
	}

	return ParsedOutput{ToolCalls: []ports.ToolCall{{Name: action, Args: normalizeArgs(rawInput)}}}, nil
}

// ParseToolCalls extracts tool calls in the JSON array and leaked OpenAI
// formats from a model response text.
func (p *OutputParser) ParseToolCalls(text string) []ports.ToolCall {
	var calls []ports.ToolCall

	if loc := p.arrayPattern.FindStringIndex(text); loc != nil {
		var entries []struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := decodeFirst(text[loc[0]:], &entries); err == nil {
			for _, e := range entries {
				if e.Name == "" {
					continue
				}
				calls = append(calls, ports.ToolCall{Name: e.Name, Args: normalizeArgs(e.Arguments)})
			}
		}
	}

	if loc := p.toolCallsPattern.FindStringIndex(text); loc != nil {
		var leaked struct {
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		}
		if err := decodeFirst(text[loc[0]:], &leaked); err == nil {
			for _, tc := range leaked.ToolCalls {
				if tc.Function.Name == "" {
					continue
				}
				args := json.RawMessage(tc.Function.Arguments)
				if !json.Valid(args) {
					args = json.RawMessage(p.fixJSON(tc.Function.Arguments))
				}
				calls = append(calls, ports.ToolCall{Name: tc.Function.Name, Args: normalizeArgs(args)})
			}
		}
	}

	return calls
}

// ValidateToolCall checks if a tool call is well-formed.
func (p *OutputParser) ValidateToolCall(call ports.ToolCall) error {
	if call.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if !json.Valid(call.Args) {
		return fmt.Errorf("tool arguments are not valid JSON")
	}
	return nil
}

func (p *OutputParser) locateBlob(text string) (string, bool) {
	if m := p.fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if loc := p.actionPattern.FindStringIndex(text); loc != nil {
		return text[loc[0]:], true
	}
	if strings.HasPrefix(text, "{") {
		return text, true
	}
	return "", false
}

func (p *OutputParser) looksLikeToolCall(text string) bool {
	for _, pattern := range p.attemptPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// fixJSON attempts to fix common JSON formatting issues.
func (p *OutputParser) fixJSON(jsonStr string) string {
	// Remove trailing commas before closing braces/brackets
	jsonStr = regexp.MustCompile(`,\s*([}\]])`).ReplaceAllString(jsonStr, "$1")

	// Fix unquoted keys (basic heuristic)
	jsonStr = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`).ReplaceAllString(jsonStr, `$1"$2":`)

	// Fix single quotes to double quotes
	jsonStr = strings.ReplaceAll(jsonStr, "'", "\"")

	return jsonStr
}

// decodeFirst decodes the first JSON value in s, ignoring trailing text.
func decodeFirst(s string, v any) error {
	return json.NewDecoder(strings.NewReader(s)).Decode(v)
}

// normalizeArgs maps absent or empty arguments to an empty object.
func normalizeArgs(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	switch trimmed {
	case "", "null", `""`:
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(trimmed)
}

func isFinalAction(action string) bool {
	switch strings.ToLower(strings.ReplaceAll(action, "_", " ")) {
	case "final answer", "final":
		return true
	}
	return false
}
