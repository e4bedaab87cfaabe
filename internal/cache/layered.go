package cache

import (
	"context"
	"time"
)

// LayeredCache checks a fast layer before a slower persistent one
type LayeredCache struct {
	fast Cache
	slow Cache
}

// NewLayeredCache creates a memory-over-disk cache
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return NewLayered(NewMemoryCache(memoryTTL, 10*time.Minute), NewDiskCache(diskDir, diskTTL))
}

// NewLayered stacks any two caches
func NewLayered(fast, slow Cache) *LayeredCache {
	return &LayeredCache{fast: fast, slow: slow}
}

// Get retrieves a value from the cache (checks the fast layer first)
func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if val, found := c.fast.Get(ctx, key); found {
		return val, true
	}

	if val, found := c.slow.Get(ctx, key); found {
		// Promote to the fast layer with its default TTL
		_ = c.fast.Set(ctx, key, val, 0)
		return val, true
	}

	return nil, false
}

// Set stores a value in both layers
func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.fast.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.slow.Set(ctx, key, value, ttl)
}

// Delete removes a value from both layers
func (c *LayeredCache) Delete(ctx context.Context, key string) error {
	_ = c.fast.Delete(ctx, key)
	return c.slow.Delete(ctx, key)
}

// Clear removes all values from both layers
func (c *LayeredCache) Clear(ctx context.Context) error {
	_ = c.fast.Clear(ctx)
	return c.slow.Clear(ctx)
}
