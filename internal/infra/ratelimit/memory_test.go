package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterBucket(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "alice", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if decision.Remaining != 2-i {
			t.Fatalf("remaining = %d, want %d", decision.Remaining, 2-i)
		}
	}
	decision, err := limiter.Allow(ctx, "alice", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("fourth request should be limited")
	}
	if got := decision.RetryAfter(now); got != 20*time.Second {
		t.Fatalf("retry after = %s, want 20s for one token", got)
	}

	other, _ := limiter.Allow(ctx, "bob", 3, time.Minute)
	if !other.Allowed {
		t.Fatalf("keys must not share a bucket")
	}

	now = now.Add(20 * time.Second)
	decision, _ = limiter.Allow(ctx, "alice", 3, time.Minute)
	if !decision.Allowed {
		t.Fatalf("a refilled token should be admitted")
	}
	if decision.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", decision.Remaining)
	}

	now = now.Add(time.Minute)
	decision, _ = limiter.Allow(ctx, "alice", 3, time.Minute)
	if !decision.Allowed || decision.Remaining != 2 {
		t.Fatalf("bucket should be full again, got %+v", decision)
	}
}

func TestMemoryLimiterEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }, MaxKeys: 1})
	ctx := context.Background()

	first, err := limiter.Allow(ctx, "a", 1, time.Minute)
	if err != nil || !first.Allowed {
		t.Fatalf("first request: %+v %v", first, err)
	}
	if _, err := limiter.Allow(ctx, "b", 1, time.Minute); err != nil {
		t.Fatalf("a new key at capacity should evict, got %v", err)
	}
	again, err := limiter.Allow(ctx, "a", 1, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !again.Allowed {
		t.Fatalf("evicted key should start with a fresh bucket")
	}
}

func TestMemoryLimiterDisabled(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryLimiterConfig{})
	decision, err := limiter.Allow(context.Background(), "k", 0, time.Minute)
	if err != nil || !decision.Allowed {
		t.Fatalf("zero limit must admit everything, got %+v %v", decision, err)
	}
}
