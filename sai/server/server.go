// Package server exposes the turn service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/ai"
	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/metrics"
)

const (
	maxBodyBytes       = 1 << 20
	defaultTurnsLimit  = 10
	maxTurnsLimit      = 100
	healthCheckTimeout = 5 * time.Second
)

// TurnRunner answers one turn. *ai.Service satisfies it.
type TurnRunner interface {
	RunTurn(ctx context.Context, query string, tc ai.TurnContext) (*ai.TurnResult, error)
}

// HealthCheck is one dependency probe run by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	ClientID string        `json:"client_id"`
	UserID   string        `json:"user_id"`
	Lat      float64       `json:"lat"`
	Long     float64       `json:"long"`
	Query    string        `json:"query"`
	History  []chatMessage `json:"history"`
	LiveMode *bool         `json:"live_mode"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Server routes HTTP requests to the turn service.
type Server struct {
	router      *mux.Router
	runner      TurnRunner
	store       ports.TurnStore
	metrics     *metrics.Collector
	checks      []HealthCheck
	allowOrigin string
	validator   *requestValidator
	logger      zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAllowOrigin sets the CORS allowed origin. Defaults to "*".
func WithAllowOrigin(origin string) Option {
	return func(s *Server) { s.allowOrigin = origin }
}

// WithTurnStore enables GET /turns/{client_id}.
func WithTurnStore(store ports.TurnStore) Option {
	return func(s *Server) { s.store = store }
}

// WithMetrics enables GET /stats.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithHealthChecks adds dependency probes to /healthz.
func WithHealthChecks(checks ...HealthCheck) Option {
	return func(s *Server) { s.checks = append(s.checks, checks...) }
}

// New creates a server and registers its routes.
func New(runner TurnRunner, logger zerolog.Logger, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, errors.New("turn runner cannot be nil")
	}
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	s := &Server{
		runner:      runner,
		allowOrigin: "*",
		validator:   validator,
		logger:      logger.With().Str("component", "server").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := mux.NewRouter().StrictSlash(true)
	r.Use(Logger(s.logger))
	r.Use(CORS(s.allowOrigin))

	r.Methods(http.MethodPost, http.MethodOptions).Path("/ai").HandlerFunc(s.handleAI)
	r.Methods(http.MethodGet, http.MethodOptions).Path("/turns/{client_id}").HandlerFunc(s.handleTurns)
	r.Methods(http.MethodGet, http.MethodOptions).Path("/healthz").HandlerFunc(s.handleHealth)
	r.Methods(http.MethodGet, http.MethodOptions).Path("/stats").HandlerFunc(s.handleStats)
	s.router = r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info().Msg("shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleAI(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "failed to read request body"})
		return
	}
	if err := s.validator.Validate(body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		return
	}

	tc := ai.TurnContext{
		ClientID: req.ClientID,
		UserID:   req.UserID,
		Lat:      req.Lat,
		Long:     req.Long,
		LiveMode: req.LiveMode != nil && *req.LiveMode,
		History:  make([]ai.HistoryEntry, 0, len(req.History)),
	}
	for _, m := range req.History {
		tc.History = append(tc.History, ai.HistoryEntry{Role: m.Role, Text: m.Content})
	}

	result, err := s.runner.RunTurn(r.Context(), req.Query, tc)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ports.ErrRateLimitExceeded) {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, errorResponse{Detail: err.Error()})
		return
	}
	if result.Items == nil {
		result.Items = []ai.NearbyItem{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "turn log is disabled"})
		return
	}

	limit := defaultTurnsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTurnsLimit)
	}

	turns, err := s.store.RecentTurns(r.Context(), mux.Vars(r)["client_id"], limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}
	if turns == nil {
		turns = []ports.Turn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

// handleHealth runs every check concurrently under one deadline.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	type outcome struct {
		name string
		err  error
	}
	p := pool.NewWithResults[outcome]()
	for _, check := range s.checks {
		p.Go(func() outcome {
			return outcome{name: check.Name, err: check.Check(ctx)}
		})
	}
	outcomes := p.Wait()
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].name < outcomes[j].name })

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(outcomes))}
	status := http.StatusOK
	for _, o := range outcomes {
		if o.err != nil {
			resp.Checks[o.name] = o.err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[o.name] = "ok"
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusOK, metrics.Summary{ToolCalls: map[string]int64{}})
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Summary())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
