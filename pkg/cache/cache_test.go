package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func countingProducer(calls *int32, value any) Producer {
	return func(context.Context) (any, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}
}

func TestGetWithinTTLInvokesProducerOnce(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()
	var calls int32

	v, err := c.Get(ctx, "cpu", 5*time.Second, countingProducer(&calls, 42))
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	clock.Advance(4999 * time.Millisecond)
	v, err = c.Get(ctx, "cpu", 5*time.Second, countingProducer(&calls, 99))
	require.NoError(t, err)
	assert.Equal(t, 42, v, "value within TTL must come from the cache")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetAfterTTLInvokesProducerAgain(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()
	var calls int32

	_, err := c.Get(ctx, "cpu", 5*time.Second, countingProducer(&calls, 1))
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	v, err := c.Get(ctx, "cpu", 5*time.Second, countingProducer(&calls, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestKeysAreIndependent(t *testing.T) {
	c := New()
	ctx := context.Background()
	var calls int32

	_, _ = c.Get(ctx, "cpu", time.Minute, countingProducer(&calls, 1))
	_, _ = c.Get(ctx, "torrents", time.Minute, countingProducer(&calls, 2))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFailedRefreshDoesNotPoisonEntry(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()
	probeErr := errors.New("sensor offline")

	_, err := c.Get(ctx, "temps", time.Second, func(context.Context) (any, error) { return "old", nil })
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = c.Get(ctx, "temps", time.Second, func(context.Context) (any, error) { return nil, probeErr })
	require.Error(t, err)
	assert.ErrorIs(t, err, probeErr)

	stale, age, ok := c.Stale("temps")
	require.True(t, ok)
	assert.Equal(t, "old", stale)
	assert.Equal(t, 2*time.Second, age)

	// The next successful refresh starts a fresh window.
	v, err := c.Get(ctx, "temps", time.Second, func(context.Context) (any, error) { return "new", nil })
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	var calls int32
	v, err = c.Get(ctx, "temps", time.Second, countingProducer(&calls, "ignored"))
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestProducerTimeout(t *testing.T) {
	c := New(WithTimeout(20 * time.Millisecond))
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := c.Get(context.Background(), "power", time.Second, func(context.Context) (any, error) {
		<-release // ignores its context on purpose
		return 1, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	_, _, ok := c.Stale("power")
	assert.False(t, ok, "timed out value must not be stored")
}

func TestNilProducer(t *testing.T) {
	_, err := New().Get(context.Background(), "x", time.Second, nil)
	assert.ErrorIs(t, err, ErrNilProducer)
}

func TestInvalidateKeepsStaleValue(t *testing.T) {
	c := New()
	ctx := context.Background()
	var calls int32

	_, _ = c.Get(ctx, "torrents", time.Minute, countingProducer(&calls, "a"))
	c.Invalidate("torrents")

	stale, _, ok := c.Stale("torrents")
	require.True(t, ok)
	assert.Equal(t, "a", stale)

	v, err := c.Get(ctx, "torrents", time.Minute, countingProducer(&calls, "b"))
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchTyped(t *testing.T) {
	c := New()
	ctx := context.Background()

	n, err := Fetch(ctx, c, "n", time.Minute, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = Fetch(ctx, c, "n", time.Minute, func(context.Context) (string, error) { return "x", nil })
	assert.Error(t, err, "type mismatch on a cached key must be reported")
}

func TestProducerPanicIsAnError(t *testing.T) {
	c := New()
	_, err := c.Get(context.Background(), "boom", time.Second, func(context.Context) (any, error) {
		panic("sensor driver exploded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "producer panicked")

	_, _, found := c.Stale("boom")
	assert.False(t, found)
}
