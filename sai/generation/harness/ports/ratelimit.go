package harnessports

import (
	"context"
	"errors"
)

// ErrRateLimitExceeded is returned when no permit can be granted before the
// caller's deadline.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimiter coordinates throughput across providers/models. Acquire blocks
// until a permit is available or ctx ends.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
