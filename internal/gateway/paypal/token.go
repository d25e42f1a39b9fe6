package paypal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// earlyExpiry is the safety margin before the reported expiry at which a
// cached token stops being reused.
const earlyExpiry = 5 * time.Minute

// TokenCache holds the one OAuth bearer token for the active credential set.
// Concurrent refreshes collapse into a single token-endpoint call via
// singleflight. The cache is keyed by the credential fingerprint so rotating
// client id/secret invalidates it immediately.
type TokenCache struct {
	now   func() time.Time
	group singleflight.Group

	mu        sync.Mutex
	credKey   string
	token     string
	expiresAt time.Time
}

// NewTokenCache creates a cache using the real clock.
func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// NewTokenCacheWithClock creates a cache with an injected clock, for tests.
func NewTokenCacheWithClock(now func() time.Time) *TokenCache {
	return &TokenCache{now: now}
}

// Token returns a valid bearer token, reusing the cached one while it has more
// than earlyExpiry of life left, otherwise invoking fetch for a fresh one.
func (c *TokenCache) Token(ctx context.Context, credKey string, fetch func(ctx context.Context) (string, time.Duration, error)) (string, error) {
	if tok, ok := c.cached(credKey); ok {
		return tok, nil
	}

	v, err, _ := c.group.Do(credKey, func() (any, error) {
		// Another waiter may have refreshed while we queued.
		if tok, ok := c.cached(credKey); ok {
			return tok, nil
		}
		tok, ttl, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.credKey = credKey
		c.token = tok
		c.expiresAt = c.now().Add(ttl)
		c.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *TokenCache) cached(credKey string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.credKey != credKey || c.token == "" {
		return "", false
	}
	if !c.now().Add(earlyExpiry).Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Invalidate drops the cached token, forcing the next call to re-authenticate.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
