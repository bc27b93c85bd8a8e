package usecase

import (
	"sort"
	"time"

	"PricePull/internal/domain/models"
	"PricePull/pkg/util"
)

const weekLabelLayout = "01.02"

// WeekLabel renders a bucket as MM.DD~MM.DD.
func WeekLabel(start, end time.Time) string {
	return start.Format(weekLabelLayout) + "~" + end.Format(weekLabelLayout)
}

// MergeDaily folds several series into one, averaging prices that share a day.
// The result is sorted by date.
func MergeDaily(series ...[]models.DailyPrice) []models.DailyPrice {
	sums := map[time.Time][2]int{}
	for _, s := range series {
		for _, p := range s {
			d := util.DateOf(p.Date)
			acc := sums[d]
			sums[d] = [2]int{acc[0] + p.Price, acc[1] + 1}
		}
	}
	out := make([]models.DailyPrice, 0, len(sums))
	for d, acc := range sums {
		out = append(out, models.DailyPrice{Date: d, Price: acc[0] / acc[1]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ForwardFill fills every day strictly between two known days with the last known
// price. Nothing is invented before the first or after the last known day.
func ForwardFill(series []models.DailyPrice) []models.DailyPrice {
	known := MergeDaily(series)
	if len(known) < 2 {
		return known
	}
	out := make([]models.DailyPrice, 0, util.DaysBetween(known[0].Date, known[len(known)-1].Date)+1)
	for i, p := range known {
		out = append(out, p)
		if i == len(known)-1 {
			break
		}
		for d := p.Date.AddDate(0, 0, 1); d.Before(known[i+1].Date); d = d.AddDate(0, 0, 1) {
			out = append(out, models.DailyPrice{Date: d, Price: p.Price})
		}
	}
	return out
}

// Bucketize groups series into Monday-based weeks and returns at most weeks
// points covering the window that ends at asOf. Empty weeks are skipped.
func Bucketize(itemKey string, series []models.DailyPrice, weeks int, asOf time.Time) []models.WeeklyPoint {
	if weeks <= 0 {
		return nil
	}
	asOf = util.DateOf(asOf)
	windowStart := util.StartOfWeek(asOf).AddDate(0, 0, -7*(weeks-1))

	type acc struct{ sum, n int }
	buckets := map[time.Time]*acc{}
	for _, p := range series {
		d := util.DateOf(p.Date)
		if p.Price <= 0 || d.After(asOf) || d.Before(windowStart) {
			continue
		}
		monday := util.StartOfWeek(d)
		b, ok := buckets[monday]
		if !ok {
			b = &acc{}
			buckets[monday] = b
		}
		b.sum += p.Price
		b.n++
	}

	out := make([]models.WeeklyPoint, 0, len(buckets))
	for monday, b := range buckets {
		end := util.MinDate(monday.AddDate(0, 0, 6), asOf)
		out = append(out, models.WeeklyPoint{
			WeekLabel: WeekLabel(monday, end),
			ItemKey:   itemKey,
			Price:     b.sum / b.n,
			WeekStart: monday,
			WeekEnd:   end,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	if len(out) > weeks {
		out = out[len(out)-weeks:]
	}
	return out
}
