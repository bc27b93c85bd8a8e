package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PricePull/internal/domain/models"
	domrepo "PricePull/internal/domain/repository"
	applogger "PricePull/pkg/logger"
	"PricePull/pkg/util"
)

// Freshness of a stored price relative to today.
type Freshness int

const (
	Missing Freshness = iota
	Fresh
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	}
	return "missing"
}

// PriceCacheOption configures PriceCache.
type PriceCacheOption func(*PriceCacheConfig)

type PriceCacheConfig struct {
	// FreshDays is the maximum age in days of a record served without refresh.
	FreshDays int
	// RetentionDays is the maximum age in days of a record kept as fallback.
	RetentionDays int
}

// WithFreshDays overrides the fresh window (default 1, the feed lag).
func WithFreshDays(n int) PriceCacheOption {
	return func(c *PriceCacheConfig) {
		if n >= 0 {
			c.FreshDays = n
		}
	}
}

// WithRetentionDays overrides the stale fallback window (default 7).
func WithRetentionDays(n int) PriceCacheOption {
	return func(c *PriceCacheConfig) {
		if n > 0 {
			c.RetentionDays = n
		}
	}
}

// PriceCache applies the freshness policy on top of a PriceStore.
type PriceCache struct {
	cfg     *PriceCacheConfig
	store   domrepo.PriceStore
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewPriceCache(store domrepo.PriceStore, metrics domrepo.Metrics, opts ...PriceCacheOption) *PriceCache {
	cfg := &PriceCacheConfig{FreshDays: 1, RetentionDays: 7}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.RetentionDays < cfg.FreshDays {
		cfg.RetentionDays = cfg.FreshDays
	}
	return &PriceCache{cfg: cfg, store: store, metrics: metrics, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (c *PriceCache) SetLogger(l *applogger.Logger) {
	if l != nil {
		c.l = l
	}
}

// Classify places rec on the Missing/Fresh/Stale scale against today.
func (c *PriceCache) Classify(rec models.PriceRecord, today time.Time) Freshness {
	if rec.Date.IsZero() || rec.Price <= 0 {
		return Missing
	}
	age := util.DaysBetween(rec.Date, today)
	switch {
	case age <= c.cfg.FreshDays:
		return Fresh
	case age <= c.cfg.RetentionDays:
		return Stale
	default:
		return Missing
	}
}

// Lookup returns the latest stored record for key within the retention window.
// A store failure is logged and reported as Missing so the caller refreshes.
func (c *PriceCache) Lookup(ctx context.Context, key models.PriceKey, today time.Time) (models.PriceRecord, Freshness) {
	since := util.DateOf(today).AddDate(0, 0, -c.cfg.RetentionDays)
	rec, err := c.store.Latest(ctx, key, since)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			c.metrics.RecordError("store_read")
			c.l.Warn("price store lookup failed", applogger.String("key", key.String()), applogger.Error(err))
		}
		c.metrics.RecordCacheResult(Missing.String())
		return models.PriceRecord{}, Missing
	}
	f := c.Classify(rec, today)
	c.metrics.RecordCacheResult(f.String())
	return rec, f
}

// Put writes records through to the store. Same-key writes overwrite.
func (c *PriceCache) Put(ctx context.Context, recs ...models.PriceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	if err := c.store.Upsert(ctx, recs...); err != nil {
		c.metrics.RecordError("store_write")
		return fmt.Errorf("price cache put: %w", err)
	}
	return nil
}

// Series returns the stored daily prices of key in [from, to], oldest first.
func (c *PriceCache) Series(ctx context.Context, key models.PriceKey, from, to time.Time) ([]models.DailyPrice, error) {
	recs, err := c.store.Range(ctx, key, from, to)
	if err != nil {
		return nil, fmt.Errorf("price cache series: %w", err)
	}
	out := make([]models.DailyPrice, 0, len(recs))
	for _, r := range recs {
		out = append(out, models.DailyPrice{Date: r.Date, Price: r.Price})
	}
	return out, nil
}

// Previous returns the latest stored record of key dated strictly before day,
// looking back at most lookbackDays.
func (c *PriceCache) Previous(ctx context.Context, key models.PriceKey, day time.Time, lookbackDays int) (models.PriceRecord, error) {
	to := util.DateOf(day).AddDate(0, 0, -1)
	recs, err := c.store.Range(ctx, key, to.AddDate(0, 0, -lookbackDays), to)
	if err != nil {
		return models.PriceRecord{}, err
	}
	if len(recs) == 0 {
		return models.PriceRecord{}, models.ErrNotFound
	}
	return recs[len(recs)-1], nil
}

// Records returns the stored records of key in [from, to], oldest first.
func (c *PriceCache) Records(ctx context.Context, key models.PriceKey, from, to time.Time) ([]models.PriceRecord, error) {
	recs, err := c.store.Range(ctx, key, from, to)
	if err != nil {
		return nil, fmt.Errorf("price cache records: %w", err)
	}
	return recs, nil
}
