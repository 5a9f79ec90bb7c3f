package ai

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/tools"
)

// MaxItems is the number of result items returned per turn.
const MaxItems = 3

const notAvailable = "N/A"

// ExtractNearbyItems builds result items from the nearby lookups in trace,
// in call order, stopping after limit items. Records whose result is not a
// JSON list and entries that are not objects are skipped.
func ExtractNearbyItems(trace []ports.ToolCallRecord, limit int) []NearbyItem {
	if limit <= 0 {
		limit = MaxItems
	}
	items := make([]NearbyItem, 0, limit)
	for _, rec := range trace {
		if rec.Name != tools.NearbyToolName {
			continue
		}
		var entries []json.RawMessage
		if err := json.Unmarshal([]byte(rec.Result), &entries); err != nil {
			continue
		}
		for _, entry := range entries {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
				continue
			}
			items = append(items, NearbyItem{
				Name:        stringOr(fields["name"], notAvailable),
				PhoneNumber: coalesceField(fields, "phone", "number"),
				Distance:    stringOr(fields["distance_km"], notAvailable),
			})
			if len(items) == limit {
				return items
			}
		}
	}
	return items
}

// coalesceField returns the first of keys holding a non-null, non-empty
// value, or nil.
func coalesceField(fields map[string]json.RawMessage, keys ...string) *string {
	for _, key := range keys {
		if s, ok := scalarText(fields[key]); ok && s != "" {
			return &s
		}
	}
	return nil
}

func stringOr(raw json.RawMessage, fallback string) string {
	if s, ok := scalarText(raw); ok {
		return s
	}
	return fallback
}

// scalarText renders a JSON value as text. Strings are unquoted, integers
// keep their digits and other numbers take their shortest decimal form.
// Absent and null values report false.
func scalarText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	text := strings.TrimSpace(string(raw))
	if c := text[0]; c == '-' || (c >= '0' && c <= '9') {
		return numberText(text), true
	}
	return text, true
}

// numberText formats a JSON number literal. Integer literals are returned
// unchanged so long phone numbers survive.
func numberText(lit string) string {
	if !strings.ContainsAny(lit, ".eE") {
		return lit
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return lit
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
