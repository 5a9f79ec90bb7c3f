package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

// GroundedSearchToolName is the registered name of the live web search tool.
const GroundedSearchToolName = "grounded_search"

// GroundedSearchSchema defines the JSON schema for grounded search parameters.
const GroundedSearchSchema = `{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "The question to answer from live web results"
    }
  },
  "required": ["query"]
}`

// ContentGenerator is the slice of the Gemini API the search tool needs.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GroundedSearchTool answers real-time questions through Gemini with Google
// Search grounding.
type GroundedSearchTool struct {
	models  ContentGenerator
	model   string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewGroundedSearchTool creates the tool over an existing generator.
func NewGroundedSearchTool(models ContentGenerator, model string, timeout time.Duration, logger zerolog.Logger) *GroundedSearchTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GroundedSearchTool{
		models:  models,
		model:   model,
		timeout: timeout,
		logger:  logger.With().Str("component", "grounded_search").Logger(),
	}
}

// NewGeminiSearch creates the tool with its own Gemini API client.
func NewGeminiSearch(ctx context.Context, apiKey, model string, timeout time.Duration, logger zerolog.Logger) (*GroundedSearchTool, error) {
	if apiKey == "" {
		return nil, ErrSearchUnavailable
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewGroundedSearchTool(client.Models, model, timeout, logger), nil
}

func (t *GroundedSearchTool) Name() string { return GroundedSearchToolName }

func (t *GroundedSearchTool) Description() string {
	return "Search the web for real-time information such as news, weather or events. Only available in live mode."
}

func (t *GroundedSearchTool) Schema() []byte { return []byte(GroundedSearchSchema) }

// Call runs the search. Failures come back as a descriptive string.
func (t *GroundedSearchTool) Call(ctx context.Context, raw json.RawMessage) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return searchError(fmt.Errorf("invalid arguments: %w", err))
	}
	if strings.TrimSpace(args.Query) == "" {
		return searchError(fmt.Errorf("query is required"))
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Search the web and give a short, factual summary answering: %s", args.Query)
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}

	resp, err := t.models.GenerateContent(ctx, t.model, contents, config)
	if err != nil {
		t.logger.Warn().Err(err).Str("query", args.Query).Msg("grounded search failed")
		return searchError(err)
	}

	text, err := firstCandidateText(resp)
	if err != nil {
		return searchError(err)
	}
	return text
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("response has no candidates")
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0] == nil {
		return "", fmt.Errorf("first candidate has no content parts")
	}
	return content.Parts[0].Text, nil
}

func searchError(err error) string {
	return fmt.Sprintf("Error performing grounded search: %v", err)
}

var _ ports.Tool = (*GroundedSearchTool)(nil)
