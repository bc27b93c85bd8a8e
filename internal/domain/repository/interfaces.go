package repository

import (
	"context"
	"time"

	"PricePull/internal/domain/models"
)

// FeedClient fetches one raw upstream response.
type FeedClient interface {
	Fetch(ctx context.Context, q models.FeedQuery) (body []byte, status int, err error)
}

// PriceStore persists PriceRecords keyed on (item, region, grade, date).
// Lookups that find nothing return models.ErrNotFound.
type PriceStore interface {
	Upsert(ctx context.Context, recs ...models.PriceRecord) error
	Get(ctx context.Context, key models.PriceKey, date time.Time) (models.PriceRecord, error)
	Latest(ctx context.Context, key models.PriceKey, since time.Time) (models.PriceRecord, error)
	Range(ctx context.Context, key models.PriceKey, from, to time.Time) ([]models.PriceRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// Publisher hands resolved prices to downstream collaborators.
type Publisher interface {
	Publish(ctx context.Context, ev models.PriceEvent) error
	Close() error
}

type Metrics interface {
	RecordFeedRequest(item, outcome string, seconds float64)
	RecordCacheResult(result string)
	RecordDropped(reason string)
	RecordError(kind string)
	RecordLastPrice(item, region, grade string, price float64)
	RecordLatency(op string, seconds float64)
}
