package ai

import (
	"fmt"
	"strings"
	"text/template"
)

// SystemPrompt frames every turn.
const SystemPrompt = "You are Sangamner AI, a friendly assistant that helps people in and around " +
	"Sangamner find local services and answers their questions briefly."

const turnTemplate = `Previous Conversation:
{{range .History}}{{.Role}}: {{.Text}}
{{end}}
Current User Query: {{.Query}}
Context: Latitude {{.Lat}}, Longitude {{.Long}}, Client ID {{.ClientID}}.
The nearby_search tool is already bound to this location and client; pass it only the search query.

IMPORTANT:
- Only use the ` + "`nearby_search`" + ` tool if the user explicitly asks to find something in Sangamner or expresses a need for a local service.
{{- if .LiveMode}}
- Only use the ` + "`grounded_search`" + ` tool if the user asks for real-time information or something outside local services.
{{- end}}
- Do NOT use tools for simple greetings, introductions, or casual conversation (e.g., "hi", "I am Rahul"). In these cases, just respond naturally and wait for a specific request.
- Do not list the names, phone numbers, or details of the services found in your text response.
- Just give a very brief and natural summary or greeting (e.g., "I found 3 hospitals nearby.").
- The details will be shown in a separate UI component.
- Take into account the previous conversation if relevant.
`

var turnPrompt = template.Must(template.New("turn").Parse(turnTemplate))

type promptData struct {
	TurnContext
	Query string
}

// RenderPrompt renders the per-turn instruction for query within tc.
func RenderPrompt(query string, tc TurnContext) (string, error) {
	var b strings.Builder
	if err := turnPrompt.Execute(&b, promptData{TurnContext: tc, Query: query}); err != nil {
		return "", fmt.Errorf("failed to render turn prompt: %w", err)
	}
	return b.String(), nil
}
