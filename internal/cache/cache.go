// Package cache provides a read-through cache scoped to one batch run.
//
// A Cache is created at the start of each batch and dropped at its end, so
// entries never outlive the poll that fetched them and nothing is persisted.
// Concurrent misses for the same key collapse into a single load.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader fetches the value for a key on a miss.
type Loader[V any] func(ctx context.Context, key string) (V, error)

// Cache is a thread-safe read-through cache. The zero value is not usable;
// call New.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	group   singleflight.Group
	load    Loader[V]

	hits   int
	misses int
}

// New creates a cache that fills misses with load.
func New[V any](load Loader[V]) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]V),
		load:    load,
	}
}

// Get returns the cached value for key, loading it on a miss. Failed loads
// are not cached, so a later Get retries.
//
// The load is shared by every concurrent caller, so it runs detached from
// the cancellation of whichever caller started it.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.RLock()
		v, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}

		v, err := c.load(context.WithoutCancel(ctx), key)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		c.entries[key] = v
		c.misses++
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ = res.(V)
	return v, nil
}

// Stats returns cache statistics.
func (c *Cache[V]) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]interface{}{
		"keys":   len(c.entries),
		"hits":   c.hits,
		"misses": c.misses,
	}
}
