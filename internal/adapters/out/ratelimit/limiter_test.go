package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
)

func testLogger() zerowrap.Logger {
	return zerowrap.Default()
}

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(rps float64, burst int) (*KeyedLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewKeyedLimiter(rps, burst, time.Minute, testLogger())
	l.now = clock.Now
	return l, clock
}

func TestKeyedLimiter_AllowsUpToBurst(t *testing.T) {
	l, _ := newTestLimiter(1, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "ip:10.0.0.1"), "request %d should be allowed", i+1)
	}
	assert.False(t, l.Allow(ctx, "ip:10.0.0.1"))
}

func TestKeyedLimiter_Refills(t *testing.T) {
	l, clock := newTestLimiter(2, 1)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "k"))
	assert.False(t, l.Allow(ctx, "k"))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, l.Allow(ctx, "k"))
}

func TestKeyedLimiter_IndependentKeys(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "a"))
	assert.False(t, l.Allow(ctx, "a"))
	assert.True(t, l.Allow(ctx, "b"))
	assert.Equal(t, 2, l.Len())
}

func TestKeyedLimiter_SweepEvictsIdleBuckets(t *testing.T) {
	l, clock := newTestLimiter(1, 1)
	ctx := context.Background()

	l.Allow(ctx, "old")
	clock.Advance(45 * time.Second)
	l.Allow(ctx, "fresh")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	// An evicted key starts again with a full bucket.
	assert.True(t, l.Allow(ctx, "old"))
}

func TestKeyedLimiter_Concurrent(t *testing.T) {
	l := NewKeyedLimiter(1, 50, 0, testLogger())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(ctx, "shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, allowed, 50)
	assert.LessOrEqual(t, allowed, 51)
}

func TestKeyedLimiter_RunStopsOnCancel(t *testing.T) {
	l := NewKeyedLimiter(1, 1, time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, time.Millisecond) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
