package tools

import (
	"errors"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

// ErrSearchUnavailable is returned when live mode needs grounded search but
// no search backend is configured.
var ErrSearchUnavailable = errors.New("grounded search is not configured")

// Toolbox holds the shared, stateless tool backends and builds the per-turn
// registry.
type Toolbox struct {
	nearby *NearbyClient
	search ports.Tool
	clock  *ClockTool
}

// NewToolbox creates a toolbox. search may be nil when no API key is set.
func NewToolbox(nearby *NearbyClient, search ports.Tool, clock *ClockTool) *Toolbox {
	if clock == nil {
		clock = NewClockTool()
	}
	return &Toolbox{nearby: nearby, search: search, clock: clock}
}

// ForTurn returns the registry offered to the model for one turn: the
// bound nearby lookup and the clock, plus grounded search in live mode.
func (b *Toolbox) ForTurn(lat, long float64, clientID string, liveMode bool) ([]ports.Tool, error) {
	if b.nearby == nil {
		return nil, errors.New("nearby lookup is not configured")
	}

	registry := []ports.Tool{b.nearby.Bind(lat, long, clientID), b.clock}
	if liveMode {
		if b.search == nil {
			return nil, ErrSearchUnavailable
		}
		registry = append(registry, b.search)
	}
	return registry, nil
}

// Unbound returns every tool with its full signature, for callers that
// supply location and client themselves.
func (b *Toolbox) Unbound() []ports.Tool {
	var all []ports.Tool
	if b.nearby != nil {
		all = append(all, NewNearbyTool(b.nearby))
	}
	all = append(all, b.clock)
	if b.search != nil {
		all = append(all, b.search)
	}
	return all
}

// Nearby returns the nearby lookup client, or nil.
func (b *Toolbox) Nearby() *NearbyClient { return b.nearby }

// SearchEnabled reports whether live mode can be served.
func (b *Toolbox) SearchEnabled() bool { return b.search != nil }
