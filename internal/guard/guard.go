// Package guard allows at most one generation in flight per user.
package guard

import (
	"context"
	"sync"

	"imagegen/internal/apperr"
)

// ReleaseFunc gives the slot back. It is safe to call more than once.
type ReleaseFunc func(ctx context.Context) error

// InFlightGuard hands out one slot per user.
type InFlightGuard interface {
	// Acquire claims the user's slot or fails with apperr.ErrGenerationInFlight.
	Acquire(ctx context.Context, userID string) (ReleaseFunc, error)
}

// Memory is a process-local guard.
type Memory struct {
	mu     sync.Mutex
	active map[string]struct{}
}

var _ InFlightGuard = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{active: make(map[string]struct{})}
}

func (m *Memory) Acquire(_ context.Context, userID string) (ReleaseFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[userID]; busy {
		return nil, apperr.ErrGenerationInFlight
	}
	m.active[userID] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.active, userID)
			m.mu.Unlock()
		})
		return nil
	}, nil
}
