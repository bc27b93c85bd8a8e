package usecase

import (
	"sort"
	"time"

	"PricePull/internal/catalog"
	"PricePull/internal/domain/models"
)

// Selector picks the representative observation for a requested region.
type Selector struct {
	catalog *catalog.Catalog
}

func NewSelector(cat *catalog.Catalog) *Selector {
	return &Selector{catalog: cat}
}

// Filter keeps the rows that answer for region and grade. Rows carrying a
// grade other than the requested one are dropped; an empty or "00" grade
// matches any row. Region rules:
//   - national (전국 or empty): average rows only
//   - online (온라인): rows whose market label names an online market
//   - any other region: exact rows plus average rows as fallback
func (s *Selector) Filter(obs []models.NormalizedObservation, region, grade string) []models.NormalizedObservation {
	region = s.catalog.NormalizeRegion(region)
	grade = catalog.NormalizeGrade(grade)
	anyGrade := grade == "" || grade == catalog.AllGrades
	out := make([]models.NormalizedObservation, 0, len(obs))
	for _, o := range obs {
		if !anyGrade && o.Grade != "" && catalog.NormalizeGrade(o.Grade) != grade {
			continue
		}
		var keep bool
		switch {
		case s.catalog.IsNational(region):
			keep = o.Priority == models.PriorityAverage
		case s.catalog.IsOnline(region):
			keep = s.catalog.IsOnlineMarket(o.Market) || o.Region == region
		default:
			keep = o.Region == region || o.Priority == models.PriorityAverage
		}
		if keep {
			out = append(out, o)
		}
	}
	return out
}

// Select returns the best row for region and grade or models.ErrNotFound.
func (s *Selector) Select(obs []models.NormalizedObservation, region, grade string) (models.NormalizedObservation, error) {
	rows := s.Filter(obs, region, grade)
	if len(rows) == 0 {
		return models.NormalizedObservation{}, models.ErrNotFound
	}
	rank(rows)
	return rows[0], nil
}

// SelectDaily applies the same ranking per calendar day and returns one price
// per day, oldest first.
func (s *Selector) SelectDaily(obs []models.NormalizedObservation, region, grade string) []models.DailyPrice {
	rows := s.Filter(obs, region, grade)
	rank(rows)

	best := make(map[time.Time]int, len(rows))
	for _, o := range rows {
		if _, ok := best[o.Date]; !ok {
			best[o.Date] = o.Price
		}
	}
	out := make([]models.DailyPrice, 0, len(best))
	for d, p := range best {
		out = append(out, models.DailyPrice{Date: d, Price: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// rank orders rows by priority asc, date desc, price desc. The sort is stable so
// equal rows keep feed order.
func rank(rows []models.NormalizedObservation) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.Price > b.Price
	})
}
