// Package lock defines per-key mutual exclusion for closing operations.
// Daily closing, monthly closing and recalculation for the same
// (entity, facility type) key must serialize; different keys proceed in
// parallel. The contract is serialization per key, not a specific mechanism:
// implementations back it with an in-process keyed mutex, Redis, or
// PostgreSQL advisory locks.
package lock

import (
	"context"
)

// ReleaseFunc releases a held lock. Safe to call once; always call it.
type ReleaseFunc func()

// Manager acquires exclusive per-key locks.
type Manager interface {
	// Acquire takes the exclusive lock for key without waiting.
	// Returns apperror.CodeClosingInProgress when the key is contended,
	// so callers can retry with backoff.
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}
