// Package cache is an in-process key/value store with per-key expiry.
// It backs typing and presence flags when no Redis is configured.
package cache

import (
	"context"
	"sync"
	"time"
)

// Item represents a cached value with its absolute expiry
type Item struct {
	Value     string
	ExpiresAt time.Time
}

// expired reports whether the item is past its expiry at now; a zero expiry never expires
func (item Item) expired(now time.Time) bool {
	return !item.ExpiresAt.IsZero() && !now.Before(item.ExpiresAt)
}

// Option customizes a Cache
type Option func(*Cache)

// WithClock replaces time.Now, mainly so tests can move time forward
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithCleanupInterval sets how often expired items are purged; zero disables the janitor
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Cache) { c.cleanupInterval = d }
}

// Cache is a thread-safe in-memory store with expiration
type Cache struct {
	mu              sync.RWMutex
	items           map[string]Item
	now             func() time.Time
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// New creates a cache and starts its janitor
func New(opts ...Option) *Cache {
	c := &Cache{
		items:           make(map[string]Item),
		now:             time.Now,
		cleanupInterval: time.Minute,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cleanupInterval > 0 {
		go c.janitor()
	}

	return c
}

// Set stores value under key for ttl; ttl <= 0 keeps it until deleted
func (c *Cache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = Item{Value: value, ExpiresAt: exp}
	c.mu.Unlock()
	return nil
}

// Get returns the value for key and whether it was present and unexpired
func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()

	if !found || item.expired(c.now()) {
		return "", false, nil
	}
	return item.Value, true, nil
}

// Exists reports whether key holds an unexpired value
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := c.Get(ctx, key)
	return found, err
}

// Delete removes key; deleting a missing key is a no-op
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Ping always succeeds; it lets the cache stand in for Redis in health checks
func (c *Cache) Ping(context.Context) error {
	return nil
}

// Count returns the number of stored items, including expired ones not yet purged
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-c.stop:
			return
		}
	}
}

// DeleteExpired purges all expired items
func (c *Cache) DeleteExpired() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.items {
		if v.expired(now) {
			delete(c.items, k)
		}
	}
}
