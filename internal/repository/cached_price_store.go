package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"PricePull/internal/domain/models"
	domrepo "PricePull/internal/domain/repository"
	pkgcache "PricePull/pkg/cache"
	applogger "PricePull/pkg/logger"
	"PricePull/pkg/util"

	"go.uber.org/multierr"
)

// maxLatestTTL bounds how long a latest entry can outlive a failed invalidation.
const maxLatestTTL = 10 * time.Minute

// CachedPriceStore puts a key-value cache in front of a persistent PriceStore.
// Point reads (Get, Latest) are cached; Range always goes to the backing store.
// A cache failure never fails a call.
type CachedPriceStore struct {
	next      domrepo.PriceStore
	cache     pkgcache.Service
	ttl       time.Duration
	latestTTL time.Duration
	metrics   domrepo.Metrics
	l         *applogger.Logger

	// writes counts committed upserts per latest key, so a read that raced
	// a write does not leave its older answer in the cache.
	mu     sync.Mutex
	writes map[string]uint64
}

func NewCachedPriceStore(next domrepo.PriceStore, cache pkgcache.Service, ttl time.Duration, metrics domrepo.Metrics) *CachedPriceStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedPriceStore{
		next:      next,
		cache:     cache,
		ttl:       ttl,
		latestTTL: min(ttl, maxLatestTTL),
		metrics:   metrics,
		l:         applogger.Nop(),
		writes:    map[string]uint64{},
	}
}

// SetLogger injects a structured logger.
func (s *CachedPriceStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func dayKey(key models.PriceKey, date time.Time) string {
	return pkgcache.Key("day", key.ItemKey, key.Region, key.Grade, util.FormatDate(date))
}

func latestKey(key models.PriceKey) string {
	return pkgcache.Key("latest", key.ItemKey, key.Region, key.Grade)
}

// Upsert commits to the backing store first, then refreshes the day entries
// and drops the latest entries of every touched series.
func (s *CachedPriceStore) Upsert(ctx context.Context, recs ...models.PriceRecord) error {
	if err := s.next.Upsert(ctx, recs...); err != nil {
		return err
	}
	stale := make([]string, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		if err := s.cache.Set(ctx, dayKey(r.Key(), r.Date), r, s.ttl); err != nil {
			s.warn("cache set failed", err)
		}
		ck := latestKey(r.Key())
		if _, ok := seen[ck]; !ok {
			seen[ck] = struct{}{}
			stale = append(stale, ck)
		}
	}
	s.bump(stale...)
	s.invalidate(ctx, stale...)
	return nil
}

func (s *CachedPriceStore) Get(ctx context.Context, key models.PriceKey, date time.Time) (models.PriceRecord, error) {
	ck := dayKey(key, date)
	var rec models.PriceRecord
	if err := s.cache.Get(ctx, ck, &rec); err == nil {
		s.metrics.RecordCacheResult("redis_hit")
		return rec, nil
	} else if !errors.Is(err, pkgcache.ErrCacheMiss) {
		s.warn("cache get failed", err)
	}
	s.metrics.RecordCacheResult("redis_miss")

	rec, err := s.next.Get(ctx, key, date)
	if err != nil {
		return rec, err
	}
	if err := s.cache.Set(ctx, ck, rec, s.ttl); err != nil {
		s.warn("cache set failed", err)
	}
	return rec, nil
}

func (s *CachedPriceStore) Latest(ctx context.Context, key models.PriceKey, since time.Time) (models.PriceRecord, error) {
	ck := latestKey(key)
	var rec models.PriceRecord
	if err := s.cache.Get(ctx, ck, &rec); err == nil {
		if !rec.Date.Before(util.DateOf(since)) {
			s.metrics.RecordCacheResult("redis_hit")
			return rec, nil
		}
	} else if !errors.Is(err, pkgcache.ErrCacheMiss) {
		s.warn("cache get failed", err)
	}
	s.metrics.RecordCacheResult("redis_miss")

	gen := s.generation(ck)
	rec, err := s.next.Latest(ctx, key, since)
	if err != nil {
		return rec, err
	}
	if s.generation(ck) != gen {
		return rec, nil
	}
	if err := s.cache.Set(ctx, ck, rec, s.latestTTL); err != nil {
		s.warn("cache set failed", err)
	}
	// A write that committed while Set was in flight may already have run its delete.
	if s.generation(ck) != gen {
		s.invalidate(ctx, ck)
	}
	return rec, nil
}

func (s *CachedPriceStore) generation(ck string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[ck]
}

func (s *CachedPriceStore) bump(cks ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ck := range cks {
		s.writes[ck]++
	}
}

// invalidate deletes cks, retrying once before giving up to the entries' ttl.
func (s *CachedPriceStore) invalidate(ctx context.Context, cks ...string) {
	if len(cks) == 0 {
		return
	}
	err := s.cache.Delete(ctx, cks...)
	if err != nil {
		err = s.cache.Delete(ctx, cks...)
	}
	if err != nil {
		s.warn("cache invalidate failed", err)
	}
}

func (s *CachedPriceStore) Range(ctx context.Context, key models.PriceKey, from, to time.Time) ([]models.PriceRecord, error) {
	return s.next.Range(ctx, key, from, to)
}

// Health checks the backing store; an unreachable cache only degrades reads.
func (s *CachedPriceStore) Health(ctx context.Context) error {
	if err := s.cache.Ping(ctx); err != nil {
		s.warn("cache ping failed", err)
	}
	return s.next.Health(ctx)
}

func (s *CachedPriceStore) Close() error {
	return multierr.Combine(s.next.Close(), s.cache.Close())
}

func (s *CachedPriceStore) warn(msg string, err error) {
	s.metrics.RecordError("cache")
	s.l.Warn(msg, applogger.Error(err))
}

var _ domrepo.PriceStore = (*CachedPriceStore)(nil)
