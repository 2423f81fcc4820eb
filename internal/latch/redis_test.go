// ABOUTME: Tests for the Redis one-shot latch against miniredis
// ABOUTME: Covers SET NX semantics, expiry, release, and bad URLs

package latch

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	r, err := NewRedis("redis://"+s.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, s
}

func TestRedis_AcquireOnce(t *testing.T) {
	r, s := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.Acquire(ctx, "code-abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Acquire(ctx, "code-abc")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, s.Exists("lamp:latch:code-abc"))
}

func TestRedis_Expiry(t *testing.T) {
	r, s := setupTestRedis(t)
	ctx := context.Background()

	ok, _ := r.Acquire(ctx, "k")
	require.True(t, ok)

	s.FastForward(2 * time.Minute)

	ok, err := r.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "key should be acquirable after ttl")
}

func TestRedis_Release(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	ok, _ := r.Acquire(ctx, "k")
	require.True(t, ok)
	require.NoError(t, r.Release(ctx, "k"))

	ok, _ = r.Acquire(ctx, "k")
	assert.True(t, ok)
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis("not a url", time.Minute)
	assert.Error(t, err)
}

func TestRedis_SatisfiesLatch(t *testing.T) {
	var _ Latch = (*Redis)(nil)
	var _ Latch = (*Memory)(nil)
}
