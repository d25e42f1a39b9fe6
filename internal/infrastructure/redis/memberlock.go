package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockManager hands out short-lived distributed locks keyed by name.
type LockManager struct {
	client     *redis.Client
	ttl        time.Duration
	maxRetries int
	retryDelay time.Duration
}

// NewLockManager creates a LockManager with the given lock TTL.
func NewLockManager(client *redis.Client, ttl time.Duration) *LockManager {
	return &LockManager{
		client:     client,
		ttl:        ttl,
		maxRetries: 10,
		retryDelay: 100 * time.Millisecond,
	}
}

// WithLock runs fn while holding the lock for key. The lock is released
// when fn returns, even on error.
func (m *LockManager) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock := NewDistributedLock(m.client, key, m.ttl)
	if err := lock.AcquireWithRetry(ctx, m.maxRetries, m.retryDelay); err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}()

	return fn(ctx)
}
