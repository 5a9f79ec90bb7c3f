package harnessports

import (
	"context"
	"encoding/json"
	"time"
)

// Turn is the persisted outcome of one answered request.
type Turn struct {
	ID        string          `json:"id"`
	ClientID  string          `json:"client_id"`
	UserID    string          `json:"user_id"`
	Query     string          `json:"query"`
	Answer    string          `json:"answer"`
	Items     json.RawMessage `json:"items"`
	LiveMode  bool            `json:"live_mode"`
	CreatedAt time.Time       `json:"created_at"`
}

// TurnStore keeps an audit log of answered turns.
type TurnStore interface {
	SaveTurn(ctx context.Context, turn Turn) error
	RecentTurns(ctx context.Context, clientID string, k int) ([]Turn, error) // last-k turns, oldest first
}
