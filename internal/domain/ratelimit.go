package domain

import (
	"context"
	"time"
)

// RateLimitDecision is the limiter's answer for one request. Remaining is
// never negative; ResetAt is when the caller's budget is full again.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long a refused caller should wait, rounded up to whole seconds.
func (d RateLimitDecision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if rest := wait % time.Second; rest != 0 {
		wait += time.Second - rest
	}
	return wait
}

// RateLimiter admits at most limit requests per window for each key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
