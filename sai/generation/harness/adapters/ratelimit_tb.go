package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

// ErrRateLimitExceeded is returned when a permit cannot be granted before the
// caller's deadline.
var ErrRateLimitExceeded = ports.ErrRateLimitExceeded

// TokenBucket is a keyed token bucket. Each key holds up to capacity tokens
// and regains one every refillRate. Acquire waits for a token rather than
// rejecting the caller.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*rate.Limiter
	capacity   int           // max tokens per bucket
	refillRate time.Duration // time between token refills
}

// NewTokenBucket creates a new token bucket rate limiter.
func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &TokenBucket{
		buckets:    make(map[string]*rate.Limiter),
		capacity:   capacity,
		refillRate: refillRate,
	}
}

// Acquire waits for a token for key. Tokens come back only through refill,
// so the returned release is a no-op kept for the port contract.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := tb.bucket(key).Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// Wait fails early when the deadline cannot be met
		return nil, fmt.Errorf("%w: %v", ErrRateLimitExceeded, err)
	}
	return func() {}, nil
}

func (tb *TokenBucket) bucket(key string) *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	l, ok := tb.buckets[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(tb.refillRate), tb.capacity)
		tb.buckets[key] = l
	}
	return l
}

var _ ports.RateLimiter = (*TokenBucket)(nil)
