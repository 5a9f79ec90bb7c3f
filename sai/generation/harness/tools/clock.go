package tools

import (
	"context"
	"encoding/json"
	"time"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

// ClockToolName is the registered name of the clock tool.
const ClockToolName = "get_current_datetime"

// ClockFormat renders e.g. "Tuesday, March 04, 2025 02:30 PM".
const ClockFormat = "Monday, January 02, 2006 03:04 PM"

// ClockTool reports the current local date and time.
type ClockTool struct {
	now func() time.Time
}

func NewClockTool() *ClockTool { return &ClockTool{now: time.Now} }

// NewClockToolAt creates a clock reading the time from now.
func NewClockToolAt(now func() time.Time) *ClockTool { return &ClockTool{now: now} }

func (t *ClockTool) Name() string        { return ClockToolName }
func (t *ClockTool) Description() string { return "Returns the current date and time." }
func (t *ClockTool) Schema() []byte      { return []byte(`{"type": "object", "properties": {}}`) }

func (t *ClockTool) Call(ctx context.Context, _ json.RawMessage) string {
	return t.now().Format(ClockFormat)
}

var _ ports.Tool = (*ClockTool)(nil)
