// Package assetcache provides the bounded name-to-location lookup that sits in
// front of the asset store. It is never authoritative: a miss means "ask the
// store".
package assetcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/prodbyeagle/soundlab"
	"github.com/prodbyeagle/soundlab/telemetry"
)

// DefaultCapacity is the capacity used by the CLI when none is configured.
const DefaultCapacity = 1000

// Cache is a fixed-capacity LRU map from asset name to file location.
// It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache
	capacity int
	evicted  []lru.Key // keys dropped by the lru while mu is held
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache holding at most capacity entries.
// A non-positive capacity returns soundlab.ErrInvalidCapacity.
func New(capacity int, opts ...Option) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", soundlab.ErrInvalidCapacity, capacity)
	}
	c := &Cache{
		entries:  lru.New(capacity),
		capacity: capacity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries.OnEvicted = func(key lru.Key, _ interface{}) {
		c.evicted = append(c.evicted, key)
	}
	return c, nil
}

// MustNew is like New but panics on an invalid capacity.
func MustNew(capacity int, opts ...Option) *Cache {
	c, err := New(capacity, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the location cached for name and marks it most recently used.
func (c *Cache) Get(name string) (string, bool) {
	return c.GetContext(context.Background(), name)
}

// GetContext is Get with a context used for metrics attribution.
func (c *Cache) GetContext(ctx context.Context, name string) (string, bool) {
	c.mu.Lock()
	v, ok := c.entries.Get(name)
	c.mu.Unlock()

	telemetry.RecordCacheLookup(ctx, ok)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Put inserts or refreshes name. When the cache is full the least recently
// used entry is evicted.
func (c *Cache) Put(name, location string) {
	c.PutContext(context.Background(), name, location)
}

// PutContext is Put with a context used for metrics attribution.
func (c *Cache) PutContext(ctx context.Context, name, location string) {
	c.mu.Lock()
	c.entries.Add(name, location)
	evicted := c.evicted
	c.evicted = nil
	size := c.entries.Len()
	c.mu.Unlock()

	for _, key := range evicted {
		c.logger.Debug("evicted cache entry", "name", key)
	}
	telemetry.RecordCacheEviction(ctx, len(evicted))
	telemetry.UpdateCacheEntries(ctx, size)
}

// Remove drops name from the cache. Removing an absent name is a no-op.
func (c *Cache) Remove(name string) {
	c.RemoveContext(context.Background(), name)
}

// RemoveContext is Remove with a context used for metrics attribution.
// An explicit removal is not counted as an eviction.
func (c *Cache) RemoveContext(ctx context.Context, name string) {
	c.mu.Lock()
	c.entries.Remove(name)
	c.evicted = nil
	size := c.entries.Len()
	c.mu.Unlock()

	telemetry.UpdateCacheEntries(ctx, size)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int {
	return c.capacity
}
