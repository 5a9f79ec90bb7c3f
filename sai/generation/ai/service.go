// Package ai turns a user query into an answer and a short list of nearby
// results by running the reasoning loop over the per-turn tool registry.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness"
	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/metrics"
)

// HistoryEntry is one prior message of the conversation. Role is "user" or "ai".
type HistoryEntry struct {
	Role string `json:"role"`
	Text string `json:"content"`
}

// TurnContext carries the request context of one turn.
type TurnContext struct {
	ClientID string
	UserID   string
	Lat      float64
	Long     float64
	LiveMode bool
	History  []HistoryEntry
}

// NearbyItem is one structured result returned alongside the answer.
type NearbyItem struct {
	Name        string  `json:"name"`
	PhoneNumber *string `json:"phone_number"`
	Distance    string  `json:"distance"`
}

// TurnResult is the outcome of one turn. Items never exceeds MaxItems.
type TurnResult struct {
	Answer string       `json:"ai_response"`
	Items  []NearbyItem `json:"results"`
}

// ReasoningLoop runs the model over a prompt and tool registry.
// *harness.HarnessOrchestrator satisfies it.
type ReasoningLoop interface {
	Orchestrate(ctx context.Context, req *harness.Request) (*harness.Response, error)
}

// ToolRegistry builds the tools offered for one turn.
// *tools.Toolbox satisfies it.
type ToolRegistry interface {
	ForTurn(lat, long float64, clientID string, liveMode bool) ([]ports.Tool, error)
}

// Service answers turns. It holds no per-turn state and is safe for
// concurrent use.
type Service struct {
	loop    ReasoningLoop
	tools   ToolRegistry
	policy  *harness.Policy
	store   ports.TurnStore
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy sets the loop policy used for every turn.
func WithPolicy(p *harness.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithTurnStore persists successful turns.
func WithTurnStore(store ports.TurnStore) Option {
	return func(s *Service) { s.store = store }
}

// WithMetrics records turn metrics into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// NewService creates a Service.
func NewService(loop ReasoningLoop, registry ToolRegistry, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if loop == nil {
		return nil, errors.New("reasoning loop cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("tool registry cannot be nil")
	}
	s := &Service{
		loop:   loop,
		tools:  registry,
		logger: logger.With().Str("component", "ai").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunTurn answers query within tc. Any failure before post-processing fails
// the whole turn; there is no partial result.
func (s *Service) RunTurn(ctx context.Context, query string, tc TurnContext) (*TurnResult, error) {
	start := time.Now()
	result, trace, err := s.runTurn(ctx, query, tc)

	if s.metrics != nil {
		for _, rec := range trace {
			s.metrics.RecordToolCall(rec.Name)
		}
		items := 0
		if result != nil {
			items = len(result.Items)
		}
		s.metrics.RecordTurn(tc.ClientID, time.Since(start), items, err)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", tc.ClientID).Dur("elapsed", time.Since(start)).Msg("turn failed")
		return nil, err
	}

	s.logger.Info().
		Str("client_id", tc.ClientID).
		Str("user_id", tc.UserID).
		Bool("live_mode", tc.LiveMode).
		Int("tool_calls", len(trace)).
		Int("items", len(result.Items)).
		Dur("elapsed", time.Since(start)).
		Msg("turn answered")

	s.saveTurn(ctx, query, tc, result)
	return result, nil
}

func (s *Service) runTurn(ctx context.Context, query string, tc TurnContext) (*TurnResult, []ports.ToolCallRecord, error) {
	registry, err := s.tools.ForTurn(tc.Lat, tc.Long, tc.ClientID, tc.LiveMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	prompt, err := RenderPrompt(query, tc)
	if err != nil {
		return nil, nil, err
	}

	resp, err := s.loop.Orchestrate(ctx, &harness.Request{
		Conversation: &harness.Conversation{
			ID:       uuid.NewString(),
			Messages: []ports.PromptMessage{{Role: "user", Content: prompt}},
		},
		System: SystemPrompt,
		Tools:  registry,
		Policy: s.policy,
		Meta: map[string]string{
			"query":     query,
			"client_id": tc.ClientID,
			"live_mode": strconv.FormatBool(tc.LiveMode),
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("reasoning loop failed: %w", err)
	}
	if resp.Stopped != nil {
		s.logger.Warn().Err(resp.Stopped).Int("tool_calls", len(resp.Trace)).Str("client_id", tc.ClientID).Msg("turn stopped at loop limit")
	}

	return &TurnResult{
		Answer: resp.Text,
		Items:  ExtractNearbyItems(resp.Trace, MaxItems),
	}, resp.Trace, nil
}

// saveTurn persists the turn. A store failure is logged, the answer stands.
func (s *Service) saveTurn(ctx context.Context, query string, tc TurnContext, result *TurnResult) {
	if s.store == nil {
		return
	}
	items, err := json.Marshal(result.Items)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode turn items")
		return
	}
	turn := ports.Turn{
		ID:        uuid.NewString(),
		ClientID:  tc.ClientID,
		UserID:    tc.UserID,
		Query:     query,
		Answer:    result.Answer,
		Items:     items,
		LiveMode:  tc.LiveMode,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveTurn(ctx, turn); err != nil {
		s.logger.Warn().Err(err).Str("client_id", tc.ClientID).Msg("failed to persist turn")
	}
}
