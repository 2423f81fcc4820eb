// ABOUTME: Tests for the in-memory one-shot latch
// ABOUTME: Validates single winner under concurrency, TTL expiry, eviction, and release

package latch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AcquireOnce(t *testing.T) {
	m := NewMemory(5*time.Minute, 100)
	defer m.Close()
	ctx := context.Background()

	first, err := m.Acquire(ctx, "code-123")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := m.Acquire(ctx, "code-123")
	require.NoError(t, err)
	assert.False(t, second, "second acquire of the same key must lose")

	other, err := m.Acquire(ctx, "code-456")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(time.Minute, 100)
	defer m.Close()
	ctx := context.Background()

	now := time.Now()
	m.now = func() time.Time { return now }

	ok, _ := m.Acquire(ctx, "k")
	require.True(t, ok)
	assert.True(t, m.held("k"))

	now = now.Add(2 * time.Minute)
	assert.False(t, m.held("k"))

	ok, _ = m.Acquire(ctx, "k")
	assert.True(t, ok, "expired key can be acquired again")
}

func TestMemory_Release(t *testing.T) {
	m := NewMemory(5*time.Minute, 100)
	defer m.Close()
	ctx := context.Background()

	ok, _ := m.Acquire(ctx, "k")
	require.True(t, ok)
	require.NoError(t, m.Release(ctx, "k"))
	require.NoError(t, m.Release(ctx, "never-held"))

	ok, _ = m.Acquire(ctx, "k")
	assert.True(t, ok)
}

func TestMemory_EvictionOrder(t *testing.T) {
	m := NewMemory(5*time.Minute, 3)
	defer m.Close()
	ctx := context.Background()

	for _, k := range []string{"first", "second", "third"} {
		ok, _ := m.Acquire(ctx, k)
		require.True(t, ok)
	}

	ok, _ := m.Acquire(ctx, "fourth")
	require.True(t, ok)

	assert.False(t, m.held("first"), "oldest key should be evicted")
	assert.True(t, m.held("second"))
	assert.True(t, m.held("third"))
	assert.True(t, m.held("fourth"))
}

func TestMemory_RunCleanup(t *testing.T) {
	m := NewMemory(time.Minute, 100)
	defer m.Close()
	ctx := context.Background()

	now := time.Now()
	m.now = func() time.Time { return now }
	m.Acquire(ctx, "a") //nolint:errcheck
	m.Acquire(ctx, "b") //nolint:errcheck

	now = now.Add(time.Hour)
	m.runCleanup()

	m.mu.Lock()
	n := len(m.seen)
	m.mu.Unlock()
	assert.Equal(t, 0, n, "cleanup should remove expired entries from map")
}

func TestMemory_AcquireAtomic(t *testing.T) {
	m := NewMemory(5*time.Minute, 100)
	defer m.Close()

	const numGoroutines = 100
	var winners int32
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if ok, _ := m.Acquire(context.Background(), "contested"); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners, "exactly one goroutine should win the latch")
}

func TestMemory_CloseTwice(t *testing.T) {
	m := NewMemory(time.Minute, 10)
	m.Close()
	m.Close()
}
