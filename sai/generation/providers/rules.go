package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/armon/go-radix"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

// Tool names the rules provider knows how to drive.
const (
	nearbyTool = "nearby_search"
	searchTool = "grounded_search"
	clockTool  = "get_current_datetime"

	searchErrorPrefix = "Error performing grounded search"
	queryMarker       = "Current User Query:"
)

type intent int

const (
	intentChat intent = iota
	intentGreeting
	intentNearby
	intentTime
	intentLive
)

var intentStems = map[intent][]string{
	intentGreeting: {"hi", "hello", "hey", "hii", "namaste", "thanks", "thank", "bye"},
	intentNearby: {
		"near", "rent", "rental", "car", "cab", "taxi", "hotel", "lodg", "restaurant", "food",
		"hospital", "doctor", "clinic", "pharmac", "medical", "shop", "store", "plumb",
		"electric", "mechanic", "garage", "salon", "bank", "atm", "school", "college",
		"repair", "tutor", "gym", "petrol", "bakery", "cafe",
	},
	intentTime: {"time", "date", "today", "clock", "day"},
	intentLive: {"news", "weather", "latest", "score", "stock", "price", "forecast", "headline", "election"},
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "me": {}, "my": {}, "i": {}, "find": {}, "show": {}, "search": {},
	"near": {}, "nearby": {}, "nearest": {}, "around": {}, "in": {}, "for": {}, "some": {}, "any": {},
	"please": {}, "can": {}, "you": {}, "is": {}, "are": {}, "there": {}, "where": {}, "what": {},
	"need": {}, "want": {}, "looking": {}, "to": {}, "here": {}, "area": {}, "get": {},
}

// RulesProvider is a deterministic keyword reasoner. It routes a query to
// one tool, then turns the observation into a short acknowledgement. It
// needs no network and backs offline runs and tests.
type RulesProvider struct {
	stems *radix.Tree
}

// NewRulesProvider builds the keyword tree.
func NewRulesProvider() *RulesProvider {
	tree := radix.New()
	for in, stems := range intentStems {
		for _, stem := range stems {
			tree.Insert(stem, in)
		}
	}
	return &RulesProvider{stems: tree}
}

func (p *RulesProvider) Name() string { return TypeRules }

// Ping always succeeds.
func (p *RulesProvider) Ping(ctx context.Context) error { return nil }

// Complete implements ports.Provider.
func (p *RulesProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	if err := ctx.Err(); err != nil {
		return ports.Completion{}, err
	}
	query := userQuery(in)

	if n := len(in.Messages); n > 0 && in.Messages[n-1].Role == "tool" {
		if name, result, ok := ports.ParseObservation(in.Messages[n-1].Content); ok {
			return ports.Completion{Text: p.summarize(name, result, query)}, nil
		}
	}

	offered := make(map[string]bool, len(in.Tools))
	for _, spec := range in.Tools {
		offered[spec.Name] = true
	}
	intents := p.classify(query)

	switch {
	case intents[intentLive] && offered[searchTool]:
		return callTool(searchTool, map[string]string{"query": query})
	case intents[intentNearby] && offered[nearbyTool]:
		return callTool(nearbyTool, map[string]string{"query": serviceQuery(query)})
	case intents[intentTime] && offered[clockTool]:
		return callTool(clockTool, map[string]string{})
	case intents[intentGreeting]:
		return ports.Completion{Text: "Hello! How can I help you today?"}, nil
	default:
		return ports.Completion{Text: "I can help you find services near you. What are you looking for?"}, nil
	}
}

// classify returns the intents whose stems match a query token. A stem
// matches a token exactly, in plural form, or as a prefix when it is at
// least four letters.
func (p *RulesProvider) classify(query string) map[intent]bool {
	found := make(map[intent]bool)
	for _, token := range tokenize(query) {
		stem, v, ok := p.stems.LongestPrefix(token)
		if !ok {
			continue
		}
		if stem == token || token == stem+"s" || len(stem) >= 4 {
			found[v.(intent)] = true
		}
	}
	return found
}

func (p *RulesProvider) summarize(name, result, query string) string {
	switch name {
	case nearbyTool:
		var places []json.RawMessage
		if err := json.Unmarshal([]byte(result), &places); err != nil {
			return "Sorry, I couldn't reach the nearby search right now. Please try again shortly."
		}
		subject := serviceQuery(query)
		if len(places) == 0 {
			return fmt.Sprintf("I couldn't find any results for %q nearby.", subject)
		}
		noun := "results"
		if len(places) == 1 {
			noun = "result"
		}
		return fmt.Sprintf("I found %d %s for %q nearby.", len(places), noun, subject)
	case searchTool:
		if strings.HasPrefix(result, searchErrorPrefix) {
			return "Sorry, I couldn't fetch live information right now."
		}
		return strings.TrimSpace(result)
	case clockTool:
		return fmt.Sprintf("It is currently %s.", result)
	default:
		return strings.TrimSpace(result)
	}
}

func callTool(name string, args map[string]string) (ports.Completion, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return ports.Completion{}, err
	}
	return ports.Completion{ToolCalls: []ports.ToolCall{{Name: name, Args: raw}}}, nil
}

// userQuery prefers the raw query from metadata and falls back to the query
// line of the rendered prompt, then to the last user message.
func userQuery(in ports.PromptInput) string {
	if q := strings.TrimSpace(in.Meta["query"]); q != "" {
		return q
	}
	for i := len(in.Messages) - 1; i >= 0; i-- {
		m := in.Messages[i]
		if m.Role != "user" {
			continue
		}
		if _, after, ok := strings.Cut(m.Content, queryMarker); ok {
			line, _, _ := strings.Cut(after, "\n")
			return strings.TrimSpace(line)
		}
		return strings.TrimSpace(m.Content)
	}
	return ""
}

// serviceQuery strips filler words, "Find car rentals near me" becomes "car rentals".
func serviceQuery(query string) string {
	var kept []string
	for _, token := range tokenize(query) {
		if _, skip := stopwords[token]; !skip {
			kept = append(kept, token)
		}
	}
	if len(kept) == 0 {
		return strings.TrimSpace(query)
	}
	return strings.Join(kept, " ")
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var (
	_ ports.Provider = (*RulesProvider)(nil)
	_ ports.Pinger   = (*RulesProvider)(nil)
)
