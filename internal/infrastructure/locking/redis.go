package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"invclose/internal/core/apperror"
	"invclose/internal/domain/lock"
	"invclose/pkg/logger"
)

// Closing a full month of days can take a while; the TTL bounds how long a
// crashed holder can block the key.
const defaultLockTTL = 5 * time.Minute

// Compile-time check that RedisManager implements lock.Manager.
var _ lock.Manager = (*RedisManager)(nil)

// RedisManager serializes per key across instances via redislock.
type RedisManager struct {
	locker *redislock.Client
	ttl    time.Duration
}

// NewRedisManager creates a Redis-backed lock manager. A zero ttl picks the
// default.
func NewRedisManager(client *redis.Client, ttl time.Duration) *RedisManager {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisManager{
		locker: redislock.New(client),
		ttl:    ttl,
	}
}

// Acquire takes the lock for key without waiting or retrying.
func (m *RedisManager) Acquire(ctx context.Context, key string) (lock.ReleaseFunc, error) {
	l, err := m.locker.Obtain(ctx, key, m.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperror.NewClosingInProgress(key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain redis lock %s: %w", key, err)
	}

	release := func() {
		// Request context may already be cancelled by the time we release.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn(releaseCtx, "failed to release redis lock", "key", key, "error", err)
		}
	}
	return release, nil
}
