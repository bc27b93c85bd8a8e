package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type point struct {
	Date  string `json:"date"`
	Price int    `json:"price"`
}

func TestKey(t *testing.T) {
	require.Equal(t, "day:Pork_Belly:서울:00:2024-05-02", Key("day", "Pork_Belly", "서울", "00", "2024-05-02"))
	require.Equal(t, "latest", Key("latest"))
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	require.NoError(t, mc.Set(ctx, "a", point{"2024-05-02", 1200}, time.Minute))
	var got point
	require.NoError(t, mc.Get(ctx, "a", &got))
	require.Equal(t, point{"2024-05-02", 1200}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "s", "raw", time.Minute))
	require.NoError(t, mc.Get(ctx, "s", &s))
	require.Equal(t, "raw", s)

	require.ErrorIs(t, mc.Get(ctx, "missing", &got), ErrCacheMiss)

	require.NoError(t, mc.Delete(ctx, "a", "s"))
	require.Zero(t, mc.Len())
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryDefaultTTL(time.Hour))
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "short", 1, time.Minute))
	require.NoError(t, mc.Set(ctx, "default", 2, 0))

	now = now.Add(2 * time.Minute)
	var n int
	require.ErrorIs(t, mc.Get(ctx, "short", &n), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "default", &n))
	require.Equal(t, 2, n)
	require.Equal(t, 1, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))
	var n int
	require.NoError(t, mc.Get(ctx, "a", &n))
	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))

	require.Equal(t, 2, mc.Len())
	require.ErrorIs(t, mc.Get(ctx, "b", &n), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &n))
	require.NoError(t, mc.Get(ctx, "c", &n))
}

func newRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := NewRedisCache(WithRedisAddr(mr.Addr()), WithRedisPrefix("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestRedisCacheRoundTripAndPrefix(t *testing.T) {
	ctx := context.Background()
	rc, mr := newRedis(t)

	require.NoError(t, rc.Set(ctx, "day:x", point{"2024-05-02", 990}, time.Hour))
	require.True(t, mr.Exists("test:day:x"))
	require.Equal(t, time.Hour, mr.TTL("test:day:x"))

	var got point
	require.NoError(t, rc.Get(ctx, "day:x", &got))
	require.Equal(t, 990, got.Price)

	require.NoError(t, rc.Delete(ctx, "day:x"))
	require.ErrorIs(t, rc.Get(ctx, "day:x", &got), ErrCacheMiss)
}

func TestRedisCacheUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(WithRedisAddr(addr))
	require.Error(t, err)
}

func TestLayeredCacheFillsL1FromRedis(t *testing.T) {
	ctx := context.Background()
	rc, mr := newRedis(t)
	lc := NewLayeredCache(rc)

	require.NoError(t, rc.Set(ctx, "k", point{"2024-05-01", 700}, time.Hour))

	var got point
	require.NoError(t, lc.Get(ctx, "k", &got))
	require.Equal(t, 700, got.Price)

	// Served from L1 once Redis forgets it.
	mr.FlushAll()
	got = point{}
	require.NoError(t, lc.Get(ctx, "k", &got))
	require.Equal(t, 700, got.Price)

	require.NoError(t, lc.Delete(ctx, "k"))
	require.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
}
