package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/ZanzyTHEbar/sangamner-ai/sai/config"
	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

const nearbySpecSchema = `{"type":"object","properties":{"query":{"type":"string","description":"service to find"}},"required":["query"]}`

func testPrompt() ports.PromptInput {
	return ports.PromptInput{
		System: "You are a helpful assistant.",
		Messages: []ports.PromptMessage{
			{Role: "user", Content: "Find car rentals near me"},
			{Role: "assistant", Content: "checking"},
			{Role: "tool", Content: "Observation from get_current_datetime: Tuesday"},
		},
		Tools: []ports.ToolSpec{{Name: "nearby_search", Description: "Find services", JSONSchema: []byte(nearbySpecSchema)}},
	}
}

// recordingServer serves a canned JSON body and keeps the decoded request.
type recordingServer struct {
	mu     sync.Mutex
	path   string
	body   map[string]any
	status int
	reply  string
}

func (s *recordingServer) handler(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.path = r.URL.Path
	s.body = nil
	_ = json.Unmarshal(raw, &s.body)
	status := s.status
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, s.reply)
}

func (s *recordingServer) request() (string, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path, s.body
}

func TestAnthropicProvider_Complete(t *testing.T) {
	rec := &recordingServer{reply: `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
		"content": [
			{"type": "text", "text": "Let me look."},
			{"type": "tool_use", "id": "tu_1", "name": "nearby_search", "input": {"query": "car rentals"}}
		],
		"stop_reason": "tool_use", "stop_sequence": null,
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	p, err := NewAnthropicProvider(srv.URL, "test-key", "claude-test")
	require.NoError(t, err)
	assert.Equal(t, TypeAnthropic, p.Name())

	completion, err := p.Complete(context.Background(), testPrompt(), ports.Options{MaxNewTokens: 256})
	require.NoError(t, err)

	assert.Equal(t, "Let me look.", completion.Text)
	require.Len(t, completion.ToolCalls, 1)
	assert.Equal(t, "nearby_search", completion.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"car rentals"}`, string(completion.ToolCalls[0].Args))
	require.NotNil(t, completion.Usage)
	assert.Equal(t, 15, completion.Usage.TotalTokens)

	path, body := rec.request()
	assert.Equal(t, "/v1/messages", path)
	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, 256, body["max_tokens"])
	assert.Len(t, body["messages"], 3)
	assert.Len(t, body["tools"], 1)
	assert.NotEmpty(t, body["system"])
}

func TestAnthropicProvider_ErrorsAndKey(t *testing.T) {
	_, err := NewAnthropicProvider("", "", "")
	require.Error(t, err)

	rec := &recordingServer{status: http.StatusBadRequest, reply: `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	p, err := NewAnthropicProvider(srv.URL, "test-key", "")
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), testPrompt(), ports.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic messages")
}

func TestOpenAIProvider_Complete(t *testing.T) {
	rec := &recordingServer{reply: `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-test",
		"choices": [{
			"index": 0, "finish_reason": "tool_calls",
			"message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "nearby_search", "arguments": "{\"query\":\"car rentals\"}"}}]
			}
		}],
		"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
	}`}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	p, err := NewOpenAIProvider(srv.URL, "test-key", "gpt-test")
	require.NoError(t, err)

	completion, err := p.Complete(context.Background(), testPrompt(), ports.Options{})
	require.NoError(t, err)
	require.Len(t, completion.ToolCalls, 1)
	assert.Equal(t, "nearby_search", completion.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"car rentals"}`, string(completion.ToolCalls[0].Args))
	assert.Equal(t, 10, completion.Usage.TotalTokens)

	path, body := rec.request()
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, "gpt-test", body["model"])
	// system prompt is prepended to the transcript
	assert.Len(t, body["messages"], 4)
	assert.Len(t, body["tools"], 1)
}

func TestOllamaProvider_Complete(t *testing.T) {
	// the ollama client reads one JSON document per line
	rec := &recordingServer{reply: `{"model":"llama-test","created_at":"2025-01-01T00:00:00Z",` +
		`"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"nearby_search","arguments":{"query":"car rentals"}}}]},` +
		`"done":true,"prompt_eval_count":12,"eval_count":4}`}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	p, err := NewOllamaProvider(srv.URL, "llama-test")
	require.NoError(t, err)

	completion, err := p.Complete(context.Background(), testPrompt(), ports.Options{Temperature: 0})
	require.NoError(t, err)
	require.Len(t, completion.ToolCalls, 1)
	assert.JSONEq(t, `{"query":"car rentals"}`, string(completion.ToolCalls[0].Args))
	assert.Equal(t, 16, completion.Usage.TotalTokens)

	path, body := rec.request()
	assert.Equal(t, "/api/chat", path)
	assert.Equal(t, false, body["stream"])
	assert.Len(t, body["messages"], 4)
	assert.Len(t, body["tools"], 1)
}

type fakeGenerator struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
	input  []*genai.Content
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.input, f.config = model, contents, config
	return f.resp, f.err
}

func TestGeminiProvider_Complete(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{Name: "nearby_search", Args: map[string]any{"query": "car rentals"}}},
		}}}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 5, CandidatesTokenCount: 2, TotalTokenCount: 7},
	}}
	p := newGeminiProvider(gen, "")

	completion, err := p.Complete(context.Background(), testPrompt(), ports.Options{})
	require.NoError(t, err)
	require.Len(t, completion.ToolCalls, 1)
	assert.JSONEq(t, `{"query":"car rentals"}`, string(completion.ToolCalls[0].Args))
	assert.Equal(t, 7, completion.Usage.TotalTokens)

	assert.Equal(t, "gemini-2.0-flash", gen.model)
	require.Len(t, gen.input, 3)
	assert.Equal(t, "user", gen.input[0].Role)
	assert.Equal(t, "model", gen.input[1].Role)
	assert.Equal(t, "user", gen.input[2].Role)
	require.NotNil(t, gen.config.SystemInstruction)
	require.Len(t, gen.config.Tools, 1)
	assert.Equal(t, "nearby_search", gen.config.Tools[0].FunctionDeclarations[0].Name)
	require.NotNil(t, gen.config.Temperature)
	assert.Zero(t, *gen.config.Temperature)
}

func TestGeminiProvider_NativeCallsRoundTrip(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "Found 2 places."}}}}},
	}}
	in := ports.PromptInput{Messages: []ports.PromptMessage{
		{Role: "user", Content: "Find a plumber and tell me the time"},
		{
			Role:    "assistant",
			Content: `{"action": "nearby_search", "action_input": {"query": "plumber"}}`,
			ToolCalls: []ports.ToolCall{
				{Name: "nearby_search", Args: json.RawMessage(`{"query":"plumber"}`)},
				{Name: "get_current_datetime", Args: json.RawMessage(`{}`)},
			},
		},
		{Role: "tool", Content: `Observation from nearby_search: [{"name":"Pipe Fixers"}]`},
		{Role: "tool", Content: "Observation from get_current_datetime: Tuesday, March 04, 2025 02:30 PM"},
		{Role: "user", Content: "Format: reply briefly"},
	}}

	_, err := newGeminiProvider(gen, "m").Complete(context.Background(), in, ports.Options{})
	require.NoError(t, err)

	require.Len(t, gen.input, 4)
	model := gen.input[1]
	assert.Equal(t, "model", model.Role)
	require.Len(t, model.Parts, 2)
	require.NotNil(t, model.Parts[0].FunctionCall)
	assert.Equal(t, "nearby_search", model.Parts[0].FunctionCall.Name)
	assert.Equal(t, map[string]any{"query": "plumber"}, model.Parts[0].FunctionCall.Args)
	assert.Equal(t, "get_current_datetime", model.Parts[1].FunctionCall.Name)

	answers := gen.input[2]
	assert.Equal(t, "user", answers.Role)
	require.Len(t, answers.Parts, 2)
	require.NotNil(t, answers.Parts[0].FunctionResponse)
	assert.Equal(t, "nearby_search", answers.Parts[0].FunctionResponse.Name)
	assert.Equal(t, `[{"name":"Pipe Fixers"}]`, answers.Parts[0].FunctionResponse.Response["output"])
	assert.Equal(t, "get_current_datetime", answers.Parts[1].FunctionResponse.Name)

	assert.Equal(t, "Format: reply briefly", gen.input[3].Parts[0].Text)
}

func TestGeminiProvider_TextAndEmpty(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "Hello "}, {Text: "there"}}}}},
	}}
	completion, err := newGeminiProvider(gen, "m").Complete(context.Background(), ports.PromptInput{}, ports.Options{})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", completion.Text)
	assert.Nil(t, gen.config.Tools)

	gen.resp = &genai.GenerateContentResponse{}
	completion, err = newGeminiProvider(gen, "m").Complete(context.Background(), ports.PromptInput{}, ports.Options{})
	require.NoError(t, err)
	assert.Empty(t, completion.Text)
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, &config.Config{Provider: config.ProviderConfig{Type: TypeRules}})
	require.NoError(t, err)
	assert.Equal(t, TypeRules, p.Name())

	p, err = NewProvider(ctx, &config.Config{Provider: config.ProviderConfig{Type: TypeOllama}})
	require.NoError(t, err)
	assert.Equal(t, TypeOllama, p.Name())

	p, err = NewProvider(ctx, &config.Config{Provider: config.ProviderConfig{Type: TypeOpenAI, APIKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, TypeOpenAI, p.Name())

	_, err = NewProvider(ctx, &config.Config{Provider: config.ProviderConfig{Type: TypeGemini}})
	require.Error(t, err, "gemini requires a key")

	_, err = NewProvider(ctx, &config.Config{Provider: config.ProviderConfig{Type: "mystery"}})
	require.Error(t, err)
}
