package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"PricePull/internal/domain/models"
	domrepo "PricePull/internal/domain/repository"
	"PricePull/pkg/util"
)

// MemoryPriceStore keeps price records in process. Used for local runs and tests.
type MemoryPriceStore struct {
	mu   sync.RWMutex
	rows map[models.PriceKey]map[time.Time]models.PriceRecord
}

func NewMemoryPriceStore() *MemoryPriceStore {
	return &MemoryPriceStore{rows: make(map[models.PriceKey]map[time.Time]models.PriceRecord)}
}

func (s *MemoryPriceStore) Upsert(_ context.Context, recs ...models.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		r.Date = util.DateOf(r.Date)
		byDate, ok := s.rows[r.Key()]
		if !ok {
			byDate = make(map[time.Time]models.PriceRecord)
			s.rows[r.Key()] = byDate
		}
		byDate[r.Date] = r
	}
	return nil
}

func (s *MemoryPriceStore) Get(_ context.Context, key models.PriceKey, date time.Time) (models.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rows[key][util.DateOf(date)]; ok {
		return r, nil
	}
	return models.PriceRecord{}, models.ErrNotFound
}

func (s *MemoryPriceStore) Latest(_ context.Context, key models.PriceKey, since time.Time) (models.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	since = util.DateOf(since)
	var (
		best  models.PriceRecord
		found bool
	)
	for d, r := range s.rows[key] {
		if d.Before(since) {
			continue
		}
		if !found || d.After(best.Date) {
			best, found = r, true
		}
	}
	if !found {
		return models.PriceRecord{}, models.ErrNotFound
	}
	return best, nil
}

func (s *MemoryPriceStore) Range(_ context.Context, key models.PriceKey, from, to time.Time) ([]models.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	from, to = util.DateOf(from), util.DateOf(to)
	out := make([]models.PriceRecord, 0)
	for d, r := range s.rows[key] {
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryPriceStore) Health(context.Context) error { return nil }

func (s *MemoryPriceStore) Close() error { return nil }

var _ domrepo.PriceStore = (*MemoryPriceStore)(nil)
