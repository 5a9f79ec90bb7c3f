package server

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// chatRequestSchema describes the POST /ai body.
const chatRequestSchema = `{
  "type": "object",
  "properties": {
    "client_id": {"type": "string"},
    "user_id":   {"type": "string"},
    "lat":       {"type": "number"},
    "long":      {"type": "number"},
    "query":     {"type": "string"},
    "history": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "role":    {"type": "string", "enum": ["user", "ai"]},
          "content": {"type": "string"}
        },
        "required": ["role", "content"]
      }
    },
    "live_mode": {"type": ["boolean", "null"]}
  },
  "required": ["client_id", "user_id", "lat", "long", "query"]
}`

type requestValidator struct {
	schema *gojsonschema.Schema
}

func newRequestValidator() (*requestValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(chatRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schema: %w", err)
	}
	return &requestValidator{schema: schema}, nil
}

// Validate reports every schema violation of body in one error.
func (v *requestValidator) Validate(body []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
}
