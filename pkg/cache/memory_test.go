package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryCache_StructRoundTripAndExpiry(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCache(WithMemoryClock(clk.now))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "AAPL", quote{Symbol: "AAPL", Last: 189.5}, 59*time.Second))

	var got quote
	require.NoError(t, c.Get(ctx, "AAPL", &got))
	assert.Equal(t, quote{Symbol: "AAPL", Last: 189.5}, got)

	clk.add(60 * time.Second)
	assert.ErrorIs(t, c.Get(ctx, "AAPL", &got), ErrCacheMiss)
	ok, err := c.Exists(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryClock(clk.now))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	clk.add(time.Second)
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	clk.add(time.Second)
	var s string
	require.NoError(t, c.Get(ctx, "a", &s))
	clk.add(time.Second)
	require.NoError(t, c.Set(ctx, "c", "3", 0))

	assert.ErrorIs(t, c.Get(ctx, "b", &s), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "a", &s))
	assert.Equal(t, "1", s)
}

func TestMemoryCache_TryLock(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "order:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = c.TryLock(ctx, "order:1", time.Minute)
	assert.False(t, ok)

	require.NoError(t, c.Unlock(ctx, "order:1"))
	ok, _ = c.TryLock(ctx, "order:1", time.Minute)
	assert.True(t, ok)
}

func TestGetOrLoad_LoadsOnce(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (quote, error) {
		calls++
		return quote{Symbol: "MSFT", Last: 410}, nil
	}
	for i := 0; i < 3; i++ {
		q, err := GetOrLoad(ctx, c, "MSFT", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, 410.0, q.Last)
	}
	assert.Equal(t, 1, calls)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "tradebot:quote", GenerateKey("tradebot", "quote"))
	assert.Equal(t, "quote", GenerateKey("", "quote"))
	assert.Equal(t, "bars:AAPL:180", GenerateKeyWithParams("bars", "AAPL", 180))
}
