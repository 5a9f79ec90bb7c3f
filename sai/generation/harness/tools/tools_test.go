package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/adapters"
)

const twoResults = `{
  "results": [
    {"name": "Zoom Cars", "phone": "123", "distance_km": 1.25, "description": "Self drive", "rating": 4.5},
    {"name": "Shree Travels", "number": "456", "distance_km": 3, "description": null, "address": "Main Rd"}
  ],
  "total": 2
}`

type capturedRequest struct {
	method  string
	headers http.Header
	body    map[string]any
}

func newNearbyServer(t *testing.T, status int, body string) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(raw, &payload)
		mu.Lock()
		captured = append(captured, capturedRequest{method: r.Method, headers: r.Header.Clone(), body: payload})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func TestNearbyClient_SearchFiltersFields(t *testing.T) {
	srv, captured := newNearbyServer(t, http.StatusOK, twoResults)
	client := NewNearbyClient(srv.URL, time.Second, zerolog.Nop())

	out := client.Search(context.Background(), NearbyArgs{Query: "car rentals", Lat: 19.5, Long: 74.2, ClientID: "test-client"})

	assert.JSONEq(t, `[
		{"name": "Zoom Cars", "phone": "123", "distance_km": 1.25, "description": "Self drive"},
		{"name": "Shree Travels", "phone": "456", "distance_km": 3, "description": null}
	]`, out)

	require.Len(t, captured(), 1)
	req := captured()[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "application/json", req.headers.Get("Content-Type"))
	assert.Equal(t, "application/json", req.headers.Get("Accept"))
	assert.Equal(t, map[string]any{
		"query":     "car rentals",
		"lat":       19.5,
		"long":      74.2,
		"client_id": "test-client",
		"page":      float64(1),
		"limit":     float64(3),
	}, req.body)
}

func TestNearbyClient_FailuresBecomeErrorObjects(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"detail": "boom"}`},
		{"not found", http.StatusNotFound, ``},
		{"malformed json", http.StatusOK, `{"results": [`},
		{"results not a list", http.StatusOK, `{"results": "nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newNearbyServer(t, tt.status, tt.body)
			client := NewNearbyClient(srv.URL, time.Second, zerolog.Nop())

			out := client.Search(context.Background(), NearbyArgs{Query: "gym"})

			var payload map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &payload))
			assert.Contains(t, payload, "error")
		})
	}
}

func TestNearbyClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewNearbyClient(url, time.Second, zerolog.Nop())
	out := client.Search(context.Background(), NearbyArgs{Query: "hospital"})

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.NotEmpty(t, payload["error"])
}

func TestNearbyClient_MissingResultsIsEmptyList(t *testing.T) {
	srv, _ := newNearbyServer(t, http.StatusOK, `{"total": 0}`)
	client := NewNearbyClient(srv.URL, time.Second, zerolog.Nop())

	assert.Equal(t, "[]", client.Search(context.Background(), NearbyArgs{Query: "gym"}))
}

func TestNearbyClient_EmptyQuery(t *testing.T) {
	client := NewNearbyClient("http://127.0.0.1:0", time.Second, zerolog.Nop())
	assert.JSONEq(t, `{"error": "query is required"}`, client.Search(context.Background(), NearbyArgs{}))
}

func TestNearbyClient_CachesSuccessfulLookups(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(twoResults))
	}))
	defer srv.Close()

	client := NewNearbyClient(srv.URL, time.Second, zerolog.Nop(),
		WithCache(adapters.NewLRUCache(10), 300),
		WithRateLimit(100, 1),
	)
	args := NearbyArgs{Query: "car rentals", Lat: 19.5, Long: 74.2, ClientID: "c"}

	first := client.Search(context.Background(), args)
	second := client.Search(context.Background(), args)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load())

	args.ClientID = "other"
	client.Search(context.Background(), args)
	assert.Equal(t, int32(2), hits.Load())
}

func TestNearbyClient_Ping(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer ok.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	assert.NoError(t, NewNearbyClient(ok.URL, time.Second, zerolog.Nop()).Ping(context.Background()))
	assert.Error(t, NewNearbyClient(down.URL, time.Second, zerolog.Nop()).Ping(context.Background()))
}

func TestBoundNearbyTool_InjectsContext(t *testing.T) {
	srv, captured := newNearbyServer(t, http.StatusOK, twoResults)
	client := NewNearbyClient(srv.URL, time.Second, zerolog.Nop())

	tool := client.Bind(19.5, 74.2, "test-client")
	assert.Equal(t, NearbyToolName, tool.Name())
	assert.JSONEq(t, BoundNearbySchema, string(tool.Schema()))

	out := tool.Call(context.Background(), json.RawMessage(`{"query": "car rentals", "lat": 0, "client_id": "spoofed"}`))
	assert.Contains(t, out, "Zoom Cars")

	require.Len(t, captured(), 1)
	body := captured()[0].body
	assert.Equal(t, 19.5, body["lat"])
	assert.Equal(t, 74.2, body["long"])
	assert.Equal(t, "test-client", body["client_id"])

	bad := tool.Call(context.Background(), json.RawMessage(`[1,2]`))
	assert.Contains(t, bad, `"error"`)
}

func TestNearbyTool_FullSignature(t *testing.T) {
	srv, captured := newNearbyServer(t, http.StatusOK, `{"results": []}`)
	tool := NewNearbyTool(NewNearbyClient(srv.URL, time.Second, zerolog.Nop()))

	out := tool.Call(context.Background(), json.RawMessage(`{"query": "atm", "lat": 1.5, "long": 2.5, "client_id": "mcp", "page": 2, "limit": 5}`))
	assert.Equal(t, "[]", out)

	body := captured()[0].body
	assert.Equal(t, float64(2), body["page"])
	assert.Equal(t, float64(5), body["limit"])
}

type fakeGenerator struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
	prompt string
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestGroundedSearchTool(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("It is sunny in Sangamner today.")}
	tool := NewGroundedSearchTool(gen, "gemini-2.0-flash", time.Second, zerolog.Nop())

	out := tool.Call(context.Background(), json.RawMessage(`{"query": "weather in Sangamner"}`))
	assert.Equal(t, "It is sunny in Sangamner today.", out)
	assert.Equal(t, "gemini-2.0-flash", gen.model)
	assert.Contains(t, gen.prompt, "weather in Sangamner")
	require.Len(t, gen.config.Tools, 1)
	assert.NotNil(t, gen.config.Tools[0].GoogleSearch)
}

func TestGroundedSearchTool_Failures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		args string
	}{
		{"backend error", &fakeGenerator{err: errors.New("quota exceeded")}, `{"query": "news"}`},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}, `{"query": "news"}`},
		{"no parts", &fakeGenerator{resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}}}, `{"query": "news"}`},
		{"empty query", &fakeGenerator{resp: textResponse("x")}, `{}`},
		{"bad args", &fakeGenerator{resp: textResponse("x")}, `"news"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := NewGroundedSearchTool(tt.gen, "m", time.Second, zerolog.Nop())
			out := tool.Call(context.Background(), json.RawMessage(tt.args))
			assert.Contains(t, out, "Error performing grounded search: ")
		})
	}
}

func TestNewGeminiSearch_RequiresKey(t *testing.T) {
	_, err := NewGeminiSearch(context.Background(), "", "m", time.Second, zerolog.Nop())
	assert.ErrorIs(t, err, ErrSearchUnavailable)
}

func TestClockTool(t *testing.T) {
	clock := NewClockTool()
	clock.now = func() time.Time { return time.Date(2025, time.March, 4, 14, 30, 0, 0, time.UTC) }

	assert.Equal(t, ClockToolName, clock.Name())
	assert.Equal(t, "Tuesday, March 04, 2025 02:30 PM", clock.Call(context.Background(), nil))
}

func TestToolbox_ForTurn(t *testing.T) {
	nearby := NewNearbyClient("http://127.0.0.1:0", time.Second, zerolog.Nop())
	search := NewGroundedSearchTool(&fakeGenerator{}, "m", time.Second, zerolog.Nop())

	names := func(box *Toolbox, live bool) []string {
		registry, err := box.ForTurn(19.5, 74.2, "c", live)
		require.NoError(t, err)
		var out []string
		for _, tool := range registry {
			out = append(out, tool.Name())
		}
		return out
	}

	box := NewToolbox(nearby, search, nil)
	assert.Equal(t, []string{NearbyToolName, ClockToolName}, names(box, false))
	assert.Equal(t, []string{NearbyToolName, ClockToolName, GroundedSearchToolName}, names(box, true))

	noSearch := NewToolbox(nearby, nil, nil)
	assert.Equal(t, []string{NearbyToolName, ClockToolName}, names(noSearch, false))
	_, err := noSearch.ForTurn(0, 0, "c", true)
	assert.ErrorIs(t, err, ErrSearchUnavailable)
	assert.False(t, noSearch.SearchEnabled())

	unbound := box.Unbound()
	require.Len(t, unbound, 3)
	assert.JSONEq(t, NearbySchema, string(unbound[0].Schema()))
}
