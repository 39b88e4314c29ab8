package permcache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Config bounds a cache by entry count and age
type Config struct {
	MaxEntries int
	TTL        time.Duration
}

// DefaultConfig returns the bounds used when none are configured
func DefaultConfig() Config {
	return Config{
		MaxEntries: 10000,
		TTL:        10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxEntries <= 0 {
		c.MaxEntries = d.MaxEntries
	}
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	return c
}

// Loader fetches the value for a key on cache miss
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// LoadingCache is a bounded, time-limited read-through cache. Concurrent
// misses for the same key collapse into a single backend load; readers see
// either the previous value or the freshly loaded one, never a partial one.
type LoadingCache[K comparable, V any] struct {
	name    string
	cache   *lru.LRU[K, V]
	group   singleflight.Group
	loader  Loader[K, V]
	metrics *Metrics
}

// NewLoadingCache creates a named read-through cache over the given loader
func NewLoadingCache[K comparable, V any](name string, cfg Config, loader Loader[K, V], metrics *Metrics) *LoadingCache[K, V] {
	cfg = cfg.withDefaults()
	return &LoadingCache[K, V]{
		name:    name,
		cache:   lru.NewLRU[K, V](cfg.MaxEntries, nil, cfg.TTL),
		loader:  loader,
		metrics: metrics,
	}
}

// Get returns the cached value for key, loading it on miss
func (c *LoadingCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if value, ok := c.cache.Get(key); ok {
		c.metrics.recordHit(c.name)
		return value, nil
	}
	c.metrics.recordMiss(c.name)

	// Collapse concurrent loads for the same key into one backend call
	result, err, _ := c.group.Do(fmt.Sprintf("%v", key), func() (interface{}, error) {
		if value, ok := c.cache.Get(key); ok {
			return value, nil
		}
		value, err := c.loader(ctx, key)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		c.metrics.recordLoadError(c.name)
		return zero, err
	}
	return result.(V), nil
}

// Invalidate drops the entry for key, if present
func (c *LoadingCache[K, V]) Invalidate(key K) {
	if c.cache.Remove(key) {
		c.metrics.recordInvalidation(c.name)
	}
}

// InvalidateMatching drops every entry whose key satisfies the predicate
func (c *LoadingCache[K, V]) InvalidateMatching(match func(K) bool) {
	for _, key := range c.cache.Keys() {
		if match(key) {
			c.cache.Remove(key)
			c.metrics.recordInvalidation(c.name)
		}
	}
}

// Purge drops every entry
func (c *LoadingCache[K, V]) Purge() {
	c.cache.Purge()
}

// Len returns the number of live entries
func (c *LoadingCache[K, V]) Len() int {
	return c.cache.Len()
}
