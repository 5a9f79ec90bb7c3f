package harness

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/sangamner-ai/sai/config"
	"github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	harnessConfig *config.HarnessConfig
	db            *sql.DB // Optional, for the turn log
	logger        zerolog.Logger
}

// NewFactory creates a new harness factory.
func NewFactory(harnessConfig *config.HarnessConfig, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		harnessConfig: harnessConfig,
		db:            db,
		logger:        logger.With().Str("component", "harness").Logger(),
	}
}

// CreateOrchestrator creates a fully wired HarnessOrchestrator around provider.
func (f *Factory) CreateOrchestrator(provider ports.Provider) (*HarnessOrchestrator, error) {
	if provider == nil {
		return nil, errors.New("harness factory: provider is required")
	}

	return NewHarnessOrchestrator(
		provider,
		NewPromptBuilder(),
		NewOutputParser(),
		f.createRateLimiter(),
		f.CreateTracer(),
		f.harnessConfig.EnableGuardrails,
	), nil
}

// CreateCache creates the cache used to memoize tool responses.
func (f *Factory) CreateCache() ports.Cache {
	if !f.harnessConfig.CacheEnabled {
		return &noOpCache{}
	}

	if f.harnessConfig.CacheBackend == "redis" {
		cache := adapters.NewRedisCache(f.harnessConfig.RedisAddr, f.harnessConfig.RedisPassword, f.harnessConfig.RedisDB, "sai:")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := cache.Ping(ctx)
		if err == nil {
			return cache
		}
		f.logger.Warn().Err(err).Str("redis_addr", f.harnessConfig.RedisAddr).Msg("Redis unreachable, falling back to in-memory LRU cache")
		_ = cache.Close()
	}

	return adapters.NewLRUCache(f.harnessConfig.CacheCapacity)
}

// createRateLimiter creates a rate limiter adapter from config.
func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.harnessConfig.RateLimitEnabled {
		return &noOpRateLimiter{}
	}

	return adapters.NewTokenBucket(f.harnessConfig.RateLimitCapacity, f.harnessConfig.RateLimitRefillRate)
}

// CreateTracer creates a tracer adapter from config.
func (f *Factory) CreateTracer() ports.Tracer {
	if !f.harnessConfig.EnableTracing {
		return &noOpTracer{}
	}

	return adapters.NewZerologTracer(f.logger)
}

// CreateStore creates the turn log adapter, a no-op without a database.
func (f *Factory) CreateStore() ports.TurnStore {
	if f.db == nil {
		return &noOpStore{}
	}

	return adapters.NewLibSQLTurnStore(f.db)
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	policy := &Policy{
		MaxToolDepth:    f.harnessConfig.MaxToolDepth,
		MaxIterations:   f.harnessConfig.MaxIterations,
		MaxParseRetries: f.harnessConfig.MaxParseRetries,
		ToolTimeout:     f.harnessConfig.ToolTimeout,
		RetryCount:      f.harnessConfig.RetryCount,
		RetryBackoff:    f.harnessConfig.RetryBackoff,
		MaxNewTokens:    1024,
	}

	// Validate and clamp policy values
	if policy.MaxToolDepth < 1 {
		policy.MaxToolDepth = 1
		f.logger.Warn().Int("max_tool_depth", f.harnessConfig.MaxToolDepth).Msg("MaxToolDepth clamped to minimum of 1")
	}
	if policy.MaxToolDepth > 10 {
		policy.MaxToolDepth = 10
		f.logger.Warn().Int("max_tool_depth", f.harnessConfig.MaxToolDepth).Msg("MaxToolDepth clamped to maximum of 10")
	}

	if policy.MaxIterations < 1 {
		policy.MaxIterations = 1
		f.logger.Warn().Int("max_iterations", f.harnessConfig.MaxIterations).Msg("MaxIterations clamped to minimum of 1")
	}
	if policy.MaxIterations > 50 {
		policy.MaxIterations = 50
		f.logger.Warn().Int("max_iterations", f.harnessConfig.MaxIterations).Msg("MaxIterations clamped to maximum of 50")
	}

	if policy.MaxParseRetries < 0 {
		policy.MaxParseRetries = 0
		f.logger.Warn().Int("max_parse_retries", f.harnessConfig.MaxParseRetries).Msg("MaxParseRetries clamped to minimum of 0")
	}

	if policy.ToolTimeout <= 0 {
		policy.ToolTimeout = 30 * time.Second
		f.logger.Warn().Dur("tool_timeout", f.harnessConfig.ToolTimeout).Msg("ToolTimeout reset to 30s")
	}

	if policy.RetryCount < 0 {
		policy.RetryCount = 0
	}
	if policy.RetryBackoff <= 0 {
		policy.RetryBackoff = 200 * time.Millisecond
	}

	return policy
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// noOpStore implements TurnStore interface with no-op behavior.
type noOpStore struct{}

func (s *noOpStore) SaveTurn(ctx context.Context, turn ports.Turn) error { return nil }

func (s *noOpStore) RecentTurns(ctx context.Context, clientID string, k int) ([]ports.Turn, error) {
	return nil, nil
}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.Cache       = (*noOpCache)(nil)
	_ ports.RateLimiter = (*noOpRateLimiter)(nil)
	_ ports.Tracer      = (*noOpTracer)(nil)
	_ ports.TurnStore   = (*noOpStore)(nil)
)
