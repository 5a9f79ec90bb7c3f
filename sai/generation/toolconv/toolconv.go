// Package toolconv converts tool declarations into the native tool formats
// of each model backend. MCP's tool type is the canonical intermediate form.
package toolconv

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

// ToMCP converts a tool spec with a JSON schema into an MCP tool.
func ToMCP(spec ports.ToolSpec) (mcptypes.Tool, error) {
	var schema struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
		Defs       map[string]any `json:"$defs"`
	}
	if len(spec.JSONSchema) > 0 {
		if err := json.Unmarshal(spec.JSONSchema, &schema); err != nil {
			return mcptypes.Tool{}, fmt.Errorf("tool %s: invalid schema: %w", spec.Name, err)
		}
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	if schema.Properties == nil {
		schema.Properties = map[string]any{}
	}

	return mcptypes.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: mcptypes.ToolInputSchema{
			Type:       schema.Type,
			Properties: schema.Properties,
			Required:   schema.Required,
			Defs:       schema.Defs,
		},
	}, nil
}

// ToMCPAll converts every spec, failing on the first invalid schema.
func ToMCPAll(specs []ports.ToolSpec) ([]mcptypes.Tool, error) {
	tools := make([]mcptypes.Tool, 0, len(specs))
	for _, spec := range specs {
		tool, err := ToMCP(spec)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// ToOllama converts MCP tools to Ollama API tool format.
func ToOllama(mcpTools []mcptypes.Tool) []api.Tool {
	ollamaTools := make([]api.Tool, 0, len(mcpTools))

	for _, mcpTool := range mcpTools {
		params := api.ToolFunctionParameters{
			Type:       mcpTool.InputSchema.Type,
			Required:   mcpTool.InputSchema.Required,
			Properties: make(map[string]api.ToolProperty),
		}
		if mcpTool.InputSchema.Defs != nil {
			params.Defs = mcpTool.InputSchema.Defs
		}
		for name, value := range mcpTool.InputSchema.Properties {
			params.Properties[name] = ollamaProperty(value)
		}

		ollamaTools = append(ollamaTools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        mcpTool.Name,
				Description: mcpTool.Description,
				Parameters:  params,
			},
		})
	}

	return ollamaTools
}

func ollamaProperty(value any) api.ToolProperty {
	prop := api.ToolProperty{}
	m := asMap(value)
	if m == nil {
		return prop
	}

	// Type can be a string or a list of strings
	switch t := m["type"].(type) {
	case string:
		prop.Type = api.PropertyType{t}
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		prop.Type = api.PropertyType(types)
	}
	if desc, ok := m["description"].(string); ok {
		prop.Description = desc
	}
	if enum, ok := m["enum"].([]any); ok {
		prop.Enum = enum
	}
	if items, ok := m["items"]; ok {
		prop.Items = items
	}
	return prop
}

// ToOpenAI converts MCP tools to OpenAI chat completion tools.
func ToOpenAI(mcpTools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolUnionParam, len(mcpTools))
	for i, tool := range mcpTools {
		params := openai.FunctionParameters{
			"type":       tool.InputSchema.Type,
			"properties": tool.InputSchema.Properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			params["required"] = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			params["$defs"] = tool.InputSchema.Defs
		}

		result[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  params,
		})
	}
	return result
}

// ToAnthropic converts MCP tools to Anthropic tool params.
func ToAnthropic(mcpTools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(mcpTools))
	for i, tool := range mcpTools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: tool.InputSchema.Properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema.Required = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			inputSchema.ExtraFields = map[string]any{"$defs": tool.InputSchema.Defs}
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return result
}

// ToGemini converts MCP tools to a single Gemini tool carrying one function
// declaration per tool.
func ToGemini(mcpTools []mcptypes.Tool) []*genai.Tool {
	if len(mcpTools) == 0 {
		return nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(mcpTools))
	for _, tool := range mcpTools {
		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(tool.InputSchema.Properties)),
			Required:   tool.InputSchema.Required,
		}
		for name, value := range tool.InputSchema.Properties {
			params.Properties[name] = geminiSchema(value)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiSchema(value any) *genai.Schema {
	schema := &genai.Schema{}
	m := asMap(value)
	if m == nil {
		return schema
	}

	if t, ok := m["type"].(string); ok {
		schema.Type = geminiType(t)
	}
	if desc, ok := m["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, v := range enum {
			schema.Enum = append(schema.Enum, fmt.Sprint(v))
		}
	}
	if items, ok := m["items"]; ok {
		schema.Items = geminiSchema(items)
	}
	if props := asMap(m["properties"]); props != nil {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, v := range props {
			schema.Properties[name] = geminiSchema(v)
		}
	}
	if req, ok := m["required"].([]any); ok {
		for _, v := range req {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func geminiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	}
	return genai.TypeUnspecified
}

// asMap normalizes a decoded JSON value to map form.
func asMap(value any) map[string]any {
	if value == nil {
		return nil
	}
	if m, ok := value.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
