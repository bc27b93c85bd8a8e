// Package normalize turns raw feed records into dated, priced and region-tagged
// observations. Records that cannot be trusted are dropped, never reported as errors.
package normalize

import (
	"strings"
	"time"

	"PricePull/internal/catalog"
	"PricePull/internal/domain/models"
	domrepo "PricePull/internal/domain/repository"
	applogger "PricePull/pkg/logger"
	"PricePull/pkg/util"
)

const (
	minYear = 2000
	maxYear = 2100
)

// Drop reasons, also used as metric labels.
const (
	DropHistorical = "historical"
	DropPrice      = "price"
	DropDate       = "date"
	DropYearRange  = "year_range"
	DropFuture     = "future"
)

type Normalizer struct {
	catalog *catalog.Catalog
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewNormalizer(cat *catalog.Catalog, metrics domrepo.Metrics) *Normalizer {
	return &Normalizer{catalog: cat, metrics: metrics, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (n *Normalizer) SetLogger(l *applogger.Logger) {
	if l != nil {
		n.l = l
	}
}

// Normalize converts raws for itemKey. Dates after asOf or outside [2000, 2100]
// are dropped, as are rows without a positive price and long-run average rows.
func (n *Normalizer) Normalize(raws []models.RawObservation, requestedRegion, itemKey string, asOf time.Time) []models.NormalizedObservation {
	asOf = util.DateOf(asOf)
	out := make([]models.NormalizedObservation, 0, len(raws))
	for _, raw := range raws {
		obs, reason, ok := n.one(raw, requestedRegion, itemKey, asOf)
		if !ok {
			n.drop(reason, itemKey, raw)
			continue
		}
		out = append(out, obs)
	}
	return out
}

func (n *Normalizer) one(raw models.RawObservation, requestedRegion, itemKey string, asOf time.Time) (models.NormalizedObservation, string, bool) {
	region := strings.TrimSpace(raw.Region)
	if n.catalog.IsHistoricalLabel(region) {
		return models.NormalizedObservation{}, DropHistorical, false
	}

	price, ok := ExtractPrice(raw.Fields)
	if !ok {
		return models.NormalizedObservation{}, DropPrice, false
	}

	date, _, ok := ParseDate(raw.RawDate, raw.Year)
	if !ok {
		return models.NormalizedObservation{}, DropDate, false
	}
	if y := date.Year(); y < minYear || y > maxYear {
		return models.NormalizedObservation{}, DropYearRange, false
	}
	if date.After(asOf) {
		return models.NormalizedObservation{}, DropFuture, false
	}

	return models.NormalizedObservation{
		ItemKey:  itemKey,
		Region:   region,
		Market:   strings.TrimSpace(raw.Market),
		Grade:    strings.TrimSpace(raw.Grade),
		Date:     date,
		Price:    price,
		Priority: n.priority(region, requestedRegion),
	}, "", true
}

// priority ranks a row's region label against the requested region.
// Sentinel labels are checked first so that "전국" rows rank as averages.
func (n *Normalizer) priority(label, requested string) int {
	switch {
	case n.catalog.IsAverageLabel(label):
		return models.PriorityAverage
	case label == strings.TrimSpace(requested):
		return models.PriorityExact
	default:
		return models.PriorityOther
	}
}

func (n *Normalizer) drop(reason, itemKey string, raw models.RawObservation) {
	n.metrics.RecordDropped(reason)
	n.l.Debug("observation dropped",
		applogger.String("reason", reason),
		applogger.String("part", itemKey),
		applogger.String("raw_date", raw.RawDate),
		applogger.String("year", raw.Year),
		applogger.String("region", raw.Region),
	)
}
