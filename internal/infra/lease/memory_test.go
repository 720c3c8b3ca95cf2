package lease

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLeaseExclusive(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemory(func() time.Time { return now })
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "job:sweep", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, _ = l.Acquire(ctx, "job:sweep", "b", time.Minute)
	if ok {
		t.Fatalf("second holder must not acquire a live lease")
	}
	ok, _ = l.Acquire(ctx, "job:sweep", "a", time.Minute)
	if !ok {
		t.Fatalf("holder should re-acquire its own lease")
	}

	now = now.Add(2 * time.Minute)
	ok, _ = l.Acquire(ctx, "job:sweep", "b", time.Minute)
	if !ok {
		t.Fatalf("expired lease should be taken over")
	}

	if err := l.Release(ctx, "job:sweep", "a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, _ = l.Acquire(ctx, "job:sweep", "a", time.Minute)
	if ok {
		t.Fatalf("release by a non-holder must not free the lease")
	}
	_ = l.Release(ctx, "job:sweep", "b")
	ok, _ = l.Acquire(ctx, "job:sweep", "a", time.Minute)
	if !ok {
		t.Fatalf("released lease should be free")
	}
}
