// Package lease provides named, expiring job leases.
package lease

import (
	"context"
	"sync"
	"time"

	"vermietify/internal/domain"
)

type memoryLease struct {
	mu      sync.Mutex
	now     func() time.Time
	holders map[string]heldLease
}

type heldLease struct {
	holder  string
	expires time.Time
}

// NewMemory returns a lease table for a single process.
func NewMemory(now func() time.Time) domain.Lease {
	if now == nil {
		now = time.Now
	}
	return &memoryLease{now: now, holders: map[string]heldLease{}}
}

func (m *memoryLease) Acquire(_ context.Context, name, holder string, ttl time.Duration) (bool, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.holders[name]; ok && now.Before(current.expires) && current.holder != holder {
		return false, nil
	}
	m.holders[name] = heldLease{holder: holder, expires: now.Add(ttl)}
	return true, nil
}

func (m *memoryLease) Release(_ context.Context, name, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.holders[name]; ok && current.holder == holder {
		delete(m.holders, name)
	}
	return nil
}
