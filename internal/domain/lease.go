package domain

import (
	"context"
	"time"
)

// Lease grants one holder the right to run a named job until it expires.
type Lease interface {
	Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holder string) error
}
