package models

import "time"

// Source tells the caller where a resolved price came from.
type Source string

const (
	SourceAPI   Source = "api"
	SourceCache Source = "cache"
)

// Trend is the direction of the latest price against the previous stored one.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Region priorities used by the selector. Lower wins.
const (
	PriorityExact   = 0
	PriorityOther   = 1
	PriorityAverage = 2
)

// PriceKey identifies one price series.
type PriceKey struct {
	ItemKey string `json:"itemKey"`
	Region  string `json:"region"`
	Grade   string `json:"grade"`
}

func (k PriceKey) String() string {
	return k.ItemKey + ":" + k.Region + ":" + k.Grade
}

// WithGrade returns a copy of k for another grade.
func (k PriceKey) WithGrade(grade string) PriceKey {
	k.Grade = grade
	return k
}

// FeedQuery is one upstream request: a series key and an inclusive date range.
type FeedQuery struct {
	PriceKey
	From time.Time
	To   time.Time
}

// RawObservation is one feed record before normalization.
// Fields holds every leaf value of the record as text.
type RawObservation struct {
	Fields  map[string]string
	RawDate string
	Year    string
	Region  string
	Market  string
	Grade   string
}

// NormalizedObservation is a feed record with a canonical date and integer price.
type NormalizedObservation struct {
	ItemKey  string
	Region   string
	Market   string
	Grade    string
	Date     time.Time
	Price    int
	Priority int
}

// PriceRecord is the persisted unit of the price cache, unique on (ItemKey, Region, Grade, Date).
type PriceRecord struct {
	ItemKey    string    `json:"itemKey"`
	Region     string    `json:"region"`
	Grade      string    `json:"grade"`
	Date       time.Time `json:"date"`
	Price      int       `json:"price"`
	InsertedAt time.Time `json:"insertedAt"`
}

func (r PriceRecord) Key() PriceKey {
	return PriceKey{ItemKey: r.ItemKey, Region: r.Region, Grade: r.Grade}
}

// DailyPrice is one point of a day-indexed series.
type DailyPrice struct {
	Date  time.Time
	Price int
}

// WeeklyPoint is the mean price of one Monday-Sunday bucket.
type WeeklyPoint struct {
	WeekLabel string    `json:"weekLabel"`
	ItemKey   string    `json:"itemKey"`
	Price     int       `json:"price"`
	WeekStart time.Time `json:"-"`
	WeekEnd   time.Time `json:"-"`
}

// GradePrice is one entry of the per-grade breakdown.
type GradePrice struct {
	Grade     string `json:"grade"`
	GradeName string `json:"gradeName"`
	Price     int    `json:"price"`
	Unit      string `json:"unit"`
	PriceDate string `json:"priceDate"`
	Trend     Trend  `json:"trend"`
	Source    Source `json:"source"`
}

// CurrentPrice answers "what is the price of part X in region Y for grade Z".
type CurrentPrice struct {
	ItemKey     string       `json:"part"`
	DisplayName string       `json:"displayName"`
	Region      string       `json:"region"`
	Grade       string       `json:"selectedGrade"`
	Price       int          `json:"currentPrice"`
	Unit        string       `json:"unit"`
	Trend       Trend        `json:"trend"`
	AsOfDate    string       `json:"priceDate"`
	Source      Source       `json:"source"`
	GradePrices []GradePrice `json:"gradePrices,omitempty"`
	ResolvedAt  time.Time    `json:"resolvedAt"`
}

// WeeklyTrend is the response of the weekly trend query.
type WeeklyTrend struct {
	ItemKey string        `json:"part"`
	Region  string        `json:"region"`
	Grade   string        `json:"grade"`
	Weeks   int           `json:"weeks"`
	Source  Source        `json:"source"`
	Points  []WeeklyPoint `json:"points"`
}

// Dashboard bundles current prices for several parts.
type Dashboard struct {
	Region string                   `json:"region"`
	Prices map[string]*CurrentPrice `json:"prices"`
	Errors map[string]string        `json:"errors,omitempty"`
}

// PriceEvent is what the inventory/notification side receives for a resolved price.
type PriceEvent struct {
	ItemKey  string    `json:"part"`
	Region   string    `json:"region"`
	Grade    string    `json:"grade"`
	Price    int       `json:"price"`
	AsOfDate string    `json:"asOfDate"`
	Source   Source    `json:"source"`
	EmitTime time.Time `json:"emitTime"`
}

// RefreshRequest asks the service to warm the cache for one key.
type RefreshRequest struct {
	Part   string `json:"part"`
	Region string `json:"region"`
	Grade  string `json:"grade"`
}
