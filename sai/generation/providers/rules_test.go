package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

func allTools(live bool) []ports.ToolSpec {
	specs := []ports.ToolSpec{{Name: nearbyTool}, {Name: clockTool}}
	if live {
		specs = append(specs, ports.ToolSpec{Name: searchTool})
	}
	return specs
}

func TestRulesProvider_Routing(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		live     bool
		wantTool string
		wantArgs string
	}{
		{name: "car rentals", query: "Find car rentals near me", wantTool: nearbyTool, wantArgs: `{"query":"car rentals"}`},
		{name: "plural stem", query: "any taxis?", wantTool: nearbyTool, wantArgs: `{"query":"taxis"}`},
		{name: "prefix stem", query: "I need an electrician", wantTool: nearbyTool, wantArgs: `{"query":"electrician"}`},
		{name: "time", query: "What time is it?", wantTool: clockTool, wantArgs: `{}`},
		{name: "live news", query: "latest cricket score", live: true, wantTool: searchTool, wantArgs: `{"query":"latest cricket score"}`},
		{name: "greeting", query: "Hello"},
		{name: "live ignored offline", query: "weather news"},
		{name: "short token is not a prefix", query: "history of care"},
	}

	p := NewRulesProvider()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completion, err := p.Complete(context.Background(), ports.PromptInput{
				Messages: []ports.PromptMessage{{Role: "user", Content: "prompt"}},
				Tools:    allTools(tt.live),
				Meta:     map[string]string{"query": tt.query},
			}, ports.Options{})
			require.NoError(t, err)

			if tt.wantTool == "" {
				assert.Empty(t, completion.ToolCalls)
				assert.NotEmpty(t, completion.Text)
				return
			}
			require.Len(t, completion.ToolCalls, 1)
			assert.Equal(t, tt.wantTool, completion.ToolCalls[0].Name)
			assert.JSONEq(t, tt.wantArgs, string(completion.ToolCalls[0].Args))
		})
	}
}

func TestRulesProvider_Observations(t *testing.T) {
	tests := []struct {
		name        string
		observation string
		want        string
	}{
		{
			name:        "nearby list",
			observation: `Observation from nearby_search: [{"name":"A"},{"name":"B"}]`,
			want:        `I found 2 results for "car rentals" nearby.`,
		},
		{
			name:        "nearby empty",
			observation: `Observation from nearby_search: []`,
			want:        `I couldn't find any results for "car rentals" nearby.`,
		},
		{
			name:        "nearby error",
			observation: `Observation from nearby_search: {"error":"boom"}`,
			want:        "Sorry, I couldn't reach the nearby search right now. Please try again shortly.",
		},
		{
			name:        "search text",
			observation: "Observation from grounded_search: India won by 5 wickets.",
			want:        "India won by 5 wickets.",
		},
		{
			name:        "search error",
			observation: "Observation from grounded_search: Error performing grounded search: timeout",
			want:        "Sorry, I couldn't fetch live information right now.",
		},
		{
			name:        "clock",
			observation: "Observation from get_current_datetime: Tuesday, March 04, 2025 02:30 PM",
			want:        "It is currently Tuesday, March 04, 2025 02:30 PM.",
		},
	}

	p := NewRulesProvider()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completion, err := p.Complete(context.Background(), ports.PromptInput{
				Messages: []ports.PromptMessage{
					{Role: "user", Content: "Context\nCurrent User Query: Find car rentals near me\nmore"},
					{Role: "assistant", Content: "call"},
					{Role: "tool", Content: tt.observation},
				},
				Tools: allTools(true),
			}, ports.Options{})
			require.NoError(t, err)
			assert.Empty(t, completion.ToolCalls)
			assert.Equal(t, tt.want, completion.Text)
		})
	}
}

func TestRulesProvider_QueryFromPrompt(t *testing.T) {
	in := ports.PromptInput{Messages: []ports.PromptMessage{
		{Role: "user", Content: "Previous Conversation:\nuser: hi\n\nCurrent User Query: hotels please\n\nContext: ..."},
	}}
	assert.Equal(t, "hotels please", userQuery(in))
	assert.Equal(t, "hotels", serviceQuery("hotels please"))
	assert.Equal(t, "near me", serviceQuery("near me"))
}

func TestRulesProvider_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRulesProvider().Complete(ctx, ports.PromptInput{}, ports.Options{})
	require.ErrorIs(t, err, context.Canceled)
}
