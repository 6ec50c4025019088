// Package locking provides lock.Manager backends: an in-process keyed mutex
// for single-instance deployments and tests, and a Redis-backed manager for
// multi-instance ones. A third backend lives in the postgres package as
// advisory locks.
package locking

import (
	"context"
	"sync"

	"invclose/internal/core/apperror"
	"invclose/internal/domain/lock"
)

// Compile-time check that LocalManager implements lock.Manager.
var _ lock.Manager = (*LocalManager)(nil)

// LocalManager serializes per key inside a single process.
type LocalManager struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalManager creates a new in-process lock manager.
func NewLocalManager() *LocalManager {
	return &LocalManager{held: make(map[string]struct{})}
}

// Acquire takes the lock for key without waiting.
func (m *LocalManager) Acquire(_ context.Context, key string) (lock.ReleaseFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[key]; busy {
		return nil, apperror.NewClosingInProgress(key)
	}
	m.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}
	return release, nil
}
