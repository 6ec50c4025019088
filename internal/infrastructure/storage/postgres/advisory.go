package postgres

import (
	"context"
	"fmt"
	"hash/fnv"

	"invclose/internal/core/apperror"
	"invclose/internal/domain/lock"
	"invclose/pkg/logger"
)

// Compile-time check that AdvisoryLockManager implements lock.Manager.
var _ lock.Manager = (*AdvisoryLockManager)(nil)

// AdvisoryLockManager implements per-key mutual exclusion with PostgreSQL
// session-level advisory locks. The lock key is a 64-bit hash of the closing
// key; the holding connection is pinned out of the pool until release, so
// the lock spans the many per-day transactions of a recalculation sweep.
type AdvisoryLockManager struct {
	pool *Pool
}

// NewAdvisoryLockManager creates an advisory lock manager.
func NewAdvisoryLockManager(pool *Pool) *AdvisoryLockManager {
	return &AdvisoryLockManager{pool: pool}
}

// Acquire implements lock.Manager.
func (m *AdvisoryLockManager) Acquire(ctx context.Context, key string) (lock.ReleaseFunc, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for advisory lock: %w", err)
	}

	lockID := hashKey(key)

	var obtained bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&obtained); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !obtained {
		conn.Release()
		return nil, apperror.NewClosingInProgress(key)
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		// Unlock on a background context so release succeeds even after
		// the request context was cancelled.
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockID); err != nil {
			logger.Error(context.Background(), "advisory unlock failed", "key", key, "error", err)
		}
		conn.Release()
	}

	return release, nil
}

// hashKey maps a closing key to a signed 64-bit advisory lock id.
func hashKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
