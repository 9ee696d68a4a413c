// Package cache holds process-local and shared caches for slow-changing facts.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fetches a fresh value.
type Loader[T any] func(ctx context.Context) (T, error)

// TTL memoizes a single value for a fixed duration.
//
// Reads inside the window return the cached value without calling the
// loader. Concurrent refreshes collapse into one loader call whose result
// (or error) is shared by every waiter. Errors are never cached. A load
// that started before Invalidate is returned to its callers but not cached.
type TTL[T any] struct {
	ttl    time.Duration
	loader Loader[T]
	group  singleflight.Group
	stamp  func(T) time.Time

	mu        sync.RWMutex
	value     T
	fetchedAt time.Time
	valid     bool
	gen       uint64

	now func() time.Time
}

// NewTTL creates a cache that refreshes through loader once ttl has elapsed.
func NewTTL[T any](ttl time.Duration, loader Loader[T]) *TTL[T] {
	return &TTL[T]{
		ttl:    ttl,
		loader: loader,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *TTL[T]) WithClock(now func() time.Time) *TTL[T] {
	c.now = now
	return c
}

// WithStamp makes the window start at the time the value itself reports,
// e.g. when the loader may return a copy fetched earlier by another process.
// A zero stamp falls back to the load time.
func (c *TTL[T]) WithStamp(stamp func(T) time.Time) *TTL[T] {
	c.stamp = stamp
	return c
}

// Get returns the cached value, loading it if absent or expired.
func (c *TTL[T]) Get(ctx context.Context) (T, error) {
	if v, ok := c.fresh(); ok {
		return v, nil
	}

	res, err, _ := c.group.Do("load", func() (any, error) {
		// Another caller may have refreshed while we waited for the group
		if v, ok := c.fresh(); ok {
			return v, nil
		}

		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		// A cancelled first caller must not fail everyone sharing the flight
		v, err := c.loader(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.store(v, gen)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Peek returns the cached value and whether it is still within the window.
func (c *TTL[T]) Peek() (T, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.fetchedAt, c.valid && c.now().Sub(c.fetchedAt) < c.ttl
}

// Set stores v as fresh.
func (c *TTL[T]) Set(v T) {
	c.mu.Lock()
	c.setLocked(v)
	c.mu.Unlock()
}

// Invalidate forces the next Get to reload and discards any load already
// in flight.
func (c *TTL[T]) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.gen++
	c.mu.Unlock()
}

// store caches v unless the cache was invalidated after the load began.
func (c *TTL[T]) store(v T, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.setLocked(v)
}

func (c *TTL[T]) setLocked(v T) {
	at := c.now()
	if c.stamp != nil {
		if stamped := c.stamp(v); !stamped.IsZero() && stamped.Before(at) {
			at = stamped
		}
	}
	c.value = v
	c.fetchedAt = at
	c.valid = true
}

func (c *TTL[T]) fresh() (T, bool) {
	v, _, ok := c.Peek()
	return v, ok
}
