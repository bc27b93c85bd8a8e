package cache

import (
	"context"
	"time"
)

// LayeredOption configures LayeredCache.
type LayeredOption func(*LayeredCache)

// WithLayeredMemorySize bounds the L1 entry count.
func WithLayeredMemorySize(n int) LayeredOption {
	return func(c *LayeredCache) {
		if n > 0 {
			c.l1Size = n
		}
	}
}

// WithLayeredMemoryTTL caps how long L1 keeps a value.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredCache) {
		if ttl > 0 {
			c.l1TTL = ttl
		}
	}
}

// LayeredCache reads L1 (process memory) before L2 (Redis) and writes
// through both. L1 entries never outlive their L2 counterpart's ttl.
type LayeredCache struct {
	l1     *MemoryCache
	l2     *RedisCache
	l1Size int
	l1TTL  time.Duration
}

// NewLayeredCache wraps l2 with a small in-process cache. Close closes l2.
func NewLayeredCache(l2 *RedisCache, opts ...LayeredOption) *LayeredCache {
	c := &LayeredCache{l2: l2, l1Size: 1000, l1TTL: time.Minute}
	for _, opt := range opts {
		opt(c)
	}
	c.l1 = NewMemoryCache(WithMemoryMaxSize(c.l1Size), WithMemoryDefaultTTL(c.l1TTL))
	return c
}

func (c *LayeredCache) Get(ctx context.Context, key string, dest any) error {
	if c.l1.Get(ctx, key, dest) == nil {
		return nil
	}
	if err := c.l2.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = c.l1.Set(ctx, key, dest, c.l1TTL)
	return nil
}

func (c *LayeredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		_ = c.l1.Delete(ctx, key)
		return err
	}
	l1 := c.l1TTL
	if ttl > 0 && ttl < l1 {
		l1 = ttl
	}
	return c.l1.Set(ctx, key, value, l1)
}

func (c *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)
	return c.l2.Delete(ctx, keys...)
}

func (c *LayeredCache) Ping(ctx context.Context) error { return c.l2.Ping(ctx) }

func (c *LayeredCache) Close() error {
	_ = c.l1.Close()
	return c.l2.Close()
}

var (
	_ Service = (*MemoryCache)(nil)
	_ Service = (*RedisCache)(nil)
	_ Service = (*LayeredCache)(nil)
)
