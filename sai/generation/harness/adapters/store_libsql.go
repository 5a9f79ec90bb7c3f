package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
	"github.com/google/uuid"
)

// LibSQLTurnStore implements TurnStore on the turn_log table.
type LibSQLTurnStore struct {
	db *sql.DB
}

// NewLibSQLTurnStore creates a store over an already migrated database.
func NewLibSQLTurnStore(db *sql.DB) *LibSQLTurnStore {
	return &LibSQLTurnStore{db: db}
}

// SaveTurn appends a turn, assigning an ID and timestamp when missing.
func (s *LibSQLTurnStore) SaveTurn(ctx context.Context, turn ports.Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	items := string(turn.Items)
	if items == "" {
		items = "[]"
	}

	const query = `
		INSERT INTO turn_log (id, client_id, user_id, query, answer, items, live_mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		turn.ID, turn.ClientID, turn.UserID, turn.Query, turn.Answer, items,
		boolToInt(turn.LiveMode), turn.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// RecentTurns loads the last k turns of a client, oldest first.
func (s *LibSQLTurnStore) RecentTurns(ctx context.Context, clientID string, k int) ([]ports.Turn, error) {
	if k <= 0 {
		k = 10
	}

	const query = `
		SELECT id, client_id, user_id, query, answer, items, live_mode, created_at
		FROM turn_log
		WHERE client_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, clientID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []ports.Turn
	for rows.Next() {
		var (
			turn     ports.Turn
			items    string
			liveMode int
			created  int64
		)
		if err := rows.Scan(&turn.ID, &turn.ClientID, &turn.UserID, &turn.Query, &turn.Answer, &items, &liveMode, &created); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Items = []byte(items)
		turn.LiveMode = liveMode != 0
		turn.CreatedAt = time.Unix(0, created).UTC()
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	// Reverse to chronological order (oldest first)
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.TurnStore = (*LibSQLTurnStore)(nil)
