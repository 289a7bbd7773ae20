package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(got))

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire exactly at its TTL")
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewMemory()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	now = now.Add(24 * 365 * time.Hour)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
}

func TestMemorySetNX(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewMemory()
	c.now = func() time.Time { return now }

	ok, err := c.SetNX(ctx, "throttle", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "throttle", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX inside the window must fail")

	now = now.Add(61 * time.Second)
	ok, err = c.SetNX(ctx, "throttle", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "SetNX should succeed once the previous entry expired")
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	got, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
	got[1] = 'y'
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemorySweepsUnreadExpiredEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryWithClock(func() time.Time { return now })

	require.NoError(t, c.Set(ctx, "pinned", []byte("1"), 0))
	for i := 0; i < sweepEvery-2; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("old:%d", i), []byte("x"), time.Minute))
	}
	assert.Equal(t, sweepEvery-1, c.Len())

	now = now.Add(2 * time.Minute)
	require.NoError(t, c.Set(ctx, "fresh", []byte("y"), time.Minute))
	assert.Equal(t, 2, c.Len(), "expired keys should be swept without being read")

	_, ok, _ := c.Get(ctx, "pinned")
	assert.True(t, ok)
}
