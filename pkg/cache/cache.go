// Package cache provides a read-through cache with a per-key time-to-live.
//
// A lookup within the TTL window returns the stored value without calling the
// producer. A lookup after the window calls the producer under the configured
// timeout and stores the result only on success, so a failed refresh leaves
// the previous value in place.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/homepanel/homepanel/internal/metrics"
)

const (
	DefaultTTL     = 5 * time.Second
	DefaultTimeout = 3 * time.Second
)

var (
	// ErrNilProducer is returned when Get is called without a producer.
	ErrNilProducer = errors.New("cache: nil producer")
	// ErrTimeout wraps producer calls that exceeded the configured timeout.
	ErrTimeout = errors.New("cache: producer timed out")
)

// Producer computes a fresh value for a key.
type Producer func(ctx context.Context) (any, error)

type entry struct {
	value    any
	storedAt time.Time
	invalid  bool
}

// Cache is safe for concurrent use. Concurrent misses on the same key may
// each invoke the producer.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTimeout sets the per-call producer timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.timeout = d
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key if it is younger than ttl. Otherwise it
// invokes producer, stores its value and returns it.
func (c *Cache) Get(ctx context.Context, key string, ttl time.Duration, producer Producer) (any, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && !e.invalid && c.now().Sub(e.storedAt) < ttl {
		metrics.CacheLookups.WithLabelValues(key, "hit").Inc()
		return e.value, nil
	}

	start := time.Now()
	value, err := c.call(ctx, producer)
	metrics.ProbeDuration.WithLabelValues(key).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CacheLookups.WithLabelValues(key, "error").Inc()
		return nil, fmt.Errorf("refresh %s: %w", key, err)
	}
	metrics.CacheLookups.WithLabelValues(key, "miss").Inc()

	c.mu.Lock()
	c.entries[key] = entry{value: value, storedAt: c.now()}
	c.mu.Unlock()

	return value, nil
}

// call runs producer in its own goroutine so a producer that ignores its
// context still cannot hold the caller past the timeout.
func (c *Cache) call(ctx context.Context, producer Producer) (any, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("producer panicked: %v", r)}
			}
		}()
		v, err := producer(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		return r.value, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// Stale returns the last successfully stored value for key and its age,
// regardless of TTL.
func (c *Cache) Stale(key string) (any, time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, 0, false
	}
	return e.value, c.now().Sub(e.storedAt), true
}

// Invalidate forces the next Get for key to call its producer. The stale
// value stays readable through Stale.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.invalid = true
		c.entries[key] = e
	}
}

// Fetch is a typed wrapper around Get.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, produce func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Get(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return produce(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: key %s holds %T", key, v)
	}
	return typed, nil
}
