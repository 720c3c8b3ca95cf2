// Package ratelimit holds the request limiters behind the HTTP API: token
// buckets in process memory, or fixed windows shared through Redis.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"vermietify/internal/domain"
)

const defaultMaxKeys = 10000

type MemoryLimiterConfig struct {
	Now func() time.Time
	// MaxKeys caps tracked keys; the least recently used bucket is dropped
	// when a new key arrives at the cap.
	MaxKeys int
}

type bucketKey struct {
	key    string
	limit  int
	window time.Duration
}

type memoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets *lru.Cache[bucketKey, *rate.Limiter]
}

// NewMemoryLimiter keeps one token bucket per key in this process. A bucket
// holds limit tokens and refills them evenly over window.
func NewMemoryLimiter(cfg MemoryLimiterConfig) domain.RateLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaultMaxKeys
	}
	buckets, _ := lru.New[bucketKey, *rate.Limiter](cfg.MaxKeys)
	return &memoryLimiter{now: cfg.Now, buckets: buckets}
}

func (m *memoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	if window <= 0 {
		window = time.Second
	}
	now := m.now()
	id := bucketKey{key: key, limit: limit, window: window}
	every := rate.Every(window / time.Duration(limit))

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.buckets.Get(id)
	if !ok {
		bucket = rate.NewLimiter(every, limit)
		m.buckets.Add(id, bucket)
	}
	allowed := bucket.AllowN(now, 1)
	tokens := bucket.TokensAt(now)

	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}
	perToken := float64(window) / float64(limit)
	resetAt := now
	switch {
	case !allowed:
		// A refused caller waits for the next token, not a full bucket.
		resetAt = now.Add(time.Duration((1 - tokens) * perToken))
	case tokens < float64(limit):
		resetAt = now.Add(time.Duration((float64(limit) - tokens) * perToken))
	}
	return domain.RateLimitDecision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
