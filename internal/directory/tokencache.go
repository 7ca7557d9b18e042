package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// RefreshFunc obtains a fresh gateway access token and its lifetime.
type RefreshFunc func(ctx context.Context) (token string, lifetime time.Duration, err error)

// TokenCache caches a gateway access token with a staleness window. It is an
// explicit object owned by the component that needs it and passed by
// reference, not a process-wide singleton.
//
// A miss or an expired token triggers a blocking pull-through refresh. A
// token inside its staleness window (still valid, but close to expiry) is
// served immediately while a single background refresh runs; callers are
// never blocked on the background refresh.
//
// TokenCache is safe for concurrent use.
type TokenCache struct {
	refresh RefreshFunc

	mu         sync.Mutex
	token      string
	expiresAt  time.Time
	refreshing bool

	staleWindow time.Duration
	clock       func() time.Time
}

// TokenCacheOption configures a [TokenCache].
type TokenCacheOption func(*TokenCache)

// WithTokenStaleWindow sets how long before expiry a cached token is
// considered stale and a background refresh is triggered. The default is
// one minute.
func WithTokenStaleWindow(d time.Duration) TokenCacheOption {
	return func(c *TokenCache) {
		c.staleWindow = d
	}
}

// WithTokenClock sets a custom clock function. Defaults to [time.Now].
// This is useful for controlling time in tests.
func WithTokenClock(clock func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		c.clock = clock
	}
}

// NewTokenCache creates a TokenCache around the given refresh function.
func NewTokenCache(refresh RefreshFunc, opts ...TokenCacheOption) (*TokenCache, error) {
	if refresh == nil {
		return nil, errors.New("refresh function cannot be nil")
	}

	c := &TokenCache{
		refresh:     refresh,
		staleWindow: time.Minute,
		clock:       time.Now,
	}

	for _, o := range opts {
		o(c)
	}

	if c.staleWindow < 0 {
		return nil, errors.New("stale window cannot be negative")
	}

	return c, nil
}

// Token returns a valid access token, refreshing as needed.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()

	now := c.clock()

	// Fresh token, possibly stale: serve it immediately and refresh in the
	// background at most once.
	if c.token != "" && now.Before(c.expiresAt) {
		token := c.token

		if now.After(c.expiresAt.Add(-c.staleWindow)) && !c.refreshing {
			c.refreshing = true
			go c.backgroundRefresh()
		}

		c.mu.Unlock()

		return token, nil
	}

	c.mu.Unlock()

	return c.pullThrough(ctx)
}

func (c *TokenCache) pullThrough(ctx context.Context) (string, error) {
	token, lifetime, err := c.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to refresh gateway token: %w", err)
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = c.clock().Add(lifetime)
	c.mu.Unlock()

	return token, nil
}

func (c *TokenCache) backgroundRefresh() {
	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
	}()

	// The background refresh is detached from any request deadline; a failed
	// attempt leaves the still-valid token in place and the next call inside
	// the staleness window retries.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = c.pullThrough(ctx)
}
