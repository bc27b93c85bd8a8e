package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"PricePull/internal/catalog"
	"PricePull/internal/domain/models"
	"PricePull/internal/repository"
	"PricePull/internal/service/normalize"
	"PricePull/pkg/metrics"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

type row struct {
	region, market, date, price string
}

// feedBody renders rows the way the feed's JSON output looks.
func feedBody(rows ...row) string {
	items := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		items = append(items, map[string]string{
			"countyname": r.region,
			"marketname": r.market,
			"regday":     r.date,
			"price":      r.price,
		})
	}
	b, _ := json.Marshal(map[string]any{
		"condition": []any{},
		"data":      map[string]any{"error_code": "000", "item": items},
	})
	return string(b)
}

type fakeFeed struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  []models.FeedQuery
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{bodies: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeFeed) Fetch(_ context.Context, q models.FeedQuery) ([]byte, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)
	if err := f.errs[q.Grade]; err != nil {
		return nil, 0, err
	}
	return []byte(f.bodies[q.Grade]), 200, nil
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []models.PriceEvent
}

func (p *capturePublisher) Publish(_ context.Context, ev models.PriceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type harness struct {
	svc   *PriceService
	feed  *fakeFeed
	store *repository.MemoryPriceStore
	pub   *capturePublisher
	cat   *catalog.Catalog
}

// now is Wednesday 2024-05-08, so the feed's as-of date is Tuesday 2024-05-07.
var now = time.Date(2024, 5, 8, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	m := metrics.Noop{}
	store := repository.NewMemoryPriceStore()
	feed := newFakeFeed()
	pub := &capturePublisher{}
	svc := NewPriceService(
		cat,
		feed,
		normalize.NewNormalizer(cat, m),
		NewSelector(cat),
		NewGradeAggregator(),
		NewPriceCache(store, m),
		pub,
		m,
		WithClock(func() time.Time { return now }),
		WithLocation(time.UTC),
	)
	return &harness{svc: svc, feed: feed, store: store, pub: pub, cat: cat}
}

func (h *harness) seed(t *testing.T, key models.PriceKey, date string, price int) {
	t.Helper()
	require.NoError(t, h.store.Upsert(context.Background(), models.PriceRecord{
		ItemKey: key.ItemKey, Region: key.Region, Grade: key.Grade,
		Date: day(date), Price: price, InsertedAt: now,
	}))
}
