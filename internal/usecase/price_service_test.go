package usecase

import (
	"context"
	"errors"
	"testing"

	"PricePull/internal/domain/models"

	"github.com/stretchr/testify/require"
)

var (
	belly  = models.PriceKey{ItemKey: "Pork_Belly", Region: "전국", Grade: "00"}
	ribeye = models.PriceKey{ItemKey: "Beef_Ribeye", Region: "전국", Grade: "00"}
)

func TestCurrentPriceFetchesAndPersists(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["00"] = feedBody(
		row{"평균", "", "2024-05-06", "2,550"},
		row{"평균", "", "2024-05-07", "2,600"},
		row{"서울", "경동", "2024-05-07", "2,900"},
	)

	cp, err := h.svc.GetCurrentPrice(context.Background(), "Pork_Belly", "", "")
	require.NoError(t, err)
	require.Equal(t, 2600, cp.Price)
	require.Equal(t, "2024-05-07", cp.AsOfDate)
	require.Equal(t, models.SourceAPI, cp.Source)
	require.Equal(t, "전국", cp.Region)
	require.Equal(t, "100g", cp.Unit)

	stored, err := h.store.Get(context.Background(), belly, day("2024-05-07"))
	require.NoError(t, err)
	require.Equal(t, 2600, stored.Price)

	require.Len(t, h.pub.events, 1)
	require.Equal(t, "2024-05-07", h.pub.events[0].AsOfDate)

	q := h.feed.calls[0]
	require.Equal(t, day("2024-05-01"), q.From)
	require.Equal(t, day("2024-05-07"), q.To)
}

func TestCurrentPriceFreshHitSkipsFeed(t *testing.T) {
	h := newHarness(t)
	h.seed(t, belly, "2024-05-07", 2400)

	cp, err := h.svc.GetCurrentPrice(context.Background(), "Pork_Belly", "전국", "00")
	require.NoError(t, err)
	require.Equal(t, 2400, cp.Price)
	require.Equal(t, models.SourceCache, cp.Source)
	require.Zero(t, h.feed.callCount())
	require.Empty(t, h.pub.events)
}

func TestCurrentPriceStaleFallback(t *testing.T) {
	h := newHarness(t)
	h.seed(t, belly, "2024-05-03", 2300)
	h.feed.errs["00"] = models.ErrFeedUnavailable

	cp, err := h.svc.GetCurrentPrice(context.Background(), "Pork_Belly", "전국", "00")
	require.NoError(t, err)
	require.Equal(t, 2300, cp.Price)
	require.Equal(t, "2024-05-03", cp.AsOfDate)
	require.Equal(t, models.SourceCache, cp.Source)
	require.Equal(t, 1, h.feed.callCount())
}

func TestCurrentPriceIgnoresRecordsPastRetention(t *testing.T) {
	h := newHarness(t)
	h.seed(t, belly, "2024-04-20", 2300)
	h.feed.errs["00"] = models.ErrFeedUnavailable

	_, err := h.svc.GetCurrentPrice(context.Background(), "Pork_Belly", "전국", "00")
	require.ErrorIs(t, err, models.ErrServiceUnavailable)
	require.ErrorIs(t, err, models.ErrFeedUnavailable)
}

func TestCurrentPriceFeedLogicError(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["00"] = `{"data":{"error_code":"200","item":[]}}`

	_, err := h.svc.GetCurrentPrice(context.Background(), "Pork_Belly", "전국", "00")
	require.ErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestCurrentPriceEmptyWindow(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["00"] = feedBody(
		row{"평년", "", "2024-05-07", "2,100"},
		row{"평균", "", "2024-05-07", "-"},
	)

	_, err := h.svc.GetCurrentPrice(context.Background(), "Pork_Belly", "전국", "00")
	require.ErrorIs(t, err, models.ErrNotFound)
	require.NotErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestCurrentPricePrefersRequestedRegion(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["00"] = feedBody(
		row{"평균", "", "2024-05-07", "2,600"},
		row{"서울", "경동", "2024-05-06", "2,700"},
		row{"부산", "부전", "2024-05-07", "2,500"},
	)

	cp, err := h.svc.GetCurrentPrice(context.Background(), "Pork_Belly", "서울", "00")
	require.NoError(t, err)
	require.Equal(t, 2700, cp.Price)
	require.Equal(t, "서울", cp.Region)
	require.Equal(t, "서울", h.feed.calls[0].Region)
}

func TestCurrentPriceTrend(t *testing.T) {
	h := newHarness(t)
	h.seed(t, belly, "2024-05-06", 2500)
	h.feed.bodies["00"] = feedBody(row{"평균", "", "2024-05-07", "2,600"})

	cp, err := h.svc.GetCurrentPrice(context.Background(), "Pork_Belly", "전국", "00")
	require.NoError(t, err)
	require.Equal(t, models.TrendUp, cp.Trend)
}

func TestTrendOf(t *testing.T) {
	require.Equal(t, models.TrendUp, TrendOf(110, 100))
	require.Equal(t, models.TrendDown, TrendOf(90, 100))
	require.Equal(t, models.TrendFlat, TrendOf(100, 100))
	require.Equal(t, models.TrendFlat, TrendOf(100, 0))
}

func TestCurrentPriceAllGrades(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["01"] = feedBody(row{"평균", "", "2024-05-07", "30,000"})
	h.feed.bodies["02"] = feedBody(row{"평균", "", "2024-05-06", "20,000"})
	h.feed.errs["03"] = models.ErrFeedUnavailable

	cp, err := h.svc.GetCurrentPrice(context.Background(), "Beef_Ribeye", "전국", "")
	require.NoError(t, err)
	require.Equal(t, 25000, cp.Price)
	require.Equal(t, "2024-05-07", cp.AsOfDate)
	require.Equal(t, "00", cp.Grade)
	require.Len(t, cp.GradePrices, 2)
	require.Equal(t, "01", cp.GradePrices[0].Grade)
	require.Equal(t, "1++등급", cp.GradePrices[0].GradeName)
	require.Equal(t, 20000, cp.GradePrices[1].Price)
	require.Equal(t, 3, h.feed.callCount())

	agg, err := h.store.Get(context.Background(), ribeye, day("2024-05-07"))
	require.NoError(t, err)
	require.Equal(t, 25000, agg.Price)
}

func TestCurrentPriceAllGradesFailed(t *testing.T) {
	h := newHarness(t)
	for _, g := range []string{"01", "02", "03"} {
		h.feed.errs[g] = models.ErrFeedUnavailable
	}

	_, err := h.svc.GetCurrentPrice(context.Background(), "Beef_Ribeye", "전국", "00")
	require.ErrorIs(t, err, models.ErrServiceUnavailable)
	require.False(t, errors.Is(err, models.ErrNotFound))
}

func TestCurrentPriceAllGradesEmpty(t *testing.T) {
	h := newHarness(t)
	for _, g := range []string{"01", "02", "03"} {
		h.feed.bodies[g] = feedBody()
	}

	_, err := h.svc.GetCurrentPrice(context.Background(), "Beef_Ribeye", "전국", "00")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestCurrentPriceSingleGrade(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["02"] = feedBody(row{"평균", "", "2024-05-07", "21,000"})

	cp, err := h.svc.GetCurrentPrice(context.Background(), "Ribeye", "전국", "02")
	require.NoError(t, err)
	require.Equal(t, "Beef_Ribeye", cp.ItemKey)
	require.Equal(t, 21000, cp.Price)
	require.Equal(t, []models.GradePrice{{
		Grade: "02", GradeName: "1+등급", Price: 21000, Unit: "100g",
		PriceDate: "2024-05-07", Trend: models.TrendFlat, Source: models.SourceAPI,
	}}, cp.GradePrices)
	require.Equal(t, "02", h.feed.calls[0].Grade)
}

func TestCurrentPriceImportLabelsOrigin(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["00"] = feedBody(row{"평균", "", "2024-05-07", "3,100"})

	cp, err := h.svc.GetCurrentPrice(context.Background(), "Import_Beef_Rib_AU", "전국", "00")
	require.NoError(t, err)
	require.Len(t, cp.GradePrices, 1)
	require.Equal(t, "82", cp.GradePrices[0].Grade)
	require.Equal(t, "호주산", cp.GradePrices[0].GradeName)
	require.Equal(t, 3100, cp.GradePrices[0].Price)
}

func TestCurrentPriceAlias(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["00"] = feedBody(row{"평균", "", "2024-05-07", "1,900"})

	cp, err := h.svc.GetCurrentPrice(context.Background(), "Pork_Rib", "전국", "00")
	require.NoError(t, err)
	require.Equal(t, "Pork_Ribs", cp.ItemKey)
	require.Equal(t, "돼지/갈비", cp.DisplayName)
}

func TestCurrentPriceInvalidSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.GetCurrentPrice(ctx, "Chicken", "전국", "00")
	require.ErrorIs(t, err, models.ErrUnknownItem)

	_, err = h.svc.GetCurrentPrice(ctx, "Pork_Belly", "평양", "00")
	require.ErrorIs(t, err, models.ErrUnknownRegion)

	_, err = h.svc.GetCurrentPrice(ctx, "Pork_Belly", "전국", "01")
	require.ErrorIs(t, err, models.ErrUnknownGrade)

	require.Zero(t, h.feed.callCount())
}

func TestWeeklyTrend(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["00"] = feedBody(
		row{"평균", "", "2024-04-29", "1,000"},
		row{"평균", "", "2024-05-01", "1,200"},
		row{"평균", "", "2024-05-03", "1,300"},
		row{"평균", "", "2024-05-06", "2,000"},
		row{"평균", "", "2024-05-07", "2,100"},
	)

	wt, err := h.svc.GetWeeklyTrend(context.Background(), "Pork_Belly", "전국", "00", 2)
	require.NoError(t, err)
	require.Equal(t, models.SourceAPI, wt.Source)
	require.Len(t, wt.Points, 2)
	require.Equal(t, "04.29~05.05", wt.Points[0].WeekLabel)
	require.Equal(t, 1185, wt.Points[0].Price)
	require.Equal(t, "05.06~05.07", wt.Points[1].WeekLabel)
	require.Equal(t, 2050, wt.Points[1].Price)

	q := h.feed.calls[0]
	require.Equal(t, day("2024-04-29"), q.From)
	require.Equal(t, day("2024-05-07"), q.To)

	stored, err := h.store.Range(context.Background(), belly, day("2024-04-29"), day("2024-05-07"))
	require.NoError(t, err)
	require.Len(t, stored, 5)
}

func TestWeeklyTrendDefaultsAndCaps(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["00"] = feedBody(row{"평균", "", "2024-05-07", "2,100"})

	wt, err := h.svc.GetWeeklyTrend(context.Background(), "Pork_Belly", "전국", "00", 0)
	require.NoError(t, err)
	require.Equal(t, DefaultWeeks, wt.Weeks)

	wt, err = h.svc.GetWeeklyTrend(context.Background(), "Pork_Belly", "전국", "00", 500)
	require.NoError(t, err)
	require.Equal(t, MaxWeeks, wt.Weeks)
}

func TestWeeklyTrendFallsBackToStore(t *testing.T) {
	h := newHarness(t)
	h.feed.errs["00"] = models.ErrFeedUnavailable
	h.seed(t, belly, "2024-05-06", 2000)
	h.seed(t, belly, "2024-05-07", 2200)

	wt, err := h.svc.GetWeeklyTrend(context.Background(), "Pork_Belly", "전국", "00", 2)
	require.NoError(t, err)
	require.Equal(t, models.SourceCache, wt.Source)
	require.Len(t, wt.Points, 1)
	require.Equal(t, 2100, wt.Points[0].Price)
}

func TestWeeklyTrendAllFailed(t *testing.T) {
	h := newHarness(t)
	for _, g := range []string{"01", "02", "03"} {
		h.feed.errs[g] = models.ErrFeedUnavailable
	}

	_, err := h.svc.GetWeeklyTrend(context.Background(), "Beef_Ribeye", "전국", "00", 4)
	require.ErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestWeeklyTrendMergesGrades(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["01"] = feedBody(row{"평균", "", "2024-05-07", "30,000"})
	h.feed.bodies["02"] = feedBody(row{"평균", "", "2024-05-07", "20,000"})
	h.feed.bodies["03"] = feedBody()

	wt, err := h.svc.GetWeeklyTrend(context.Background(), "Beef_Ribeye", "전국", "00", 1)
	require.NoError(t, err)
	require.Len(t, wt.Points, 1)
	require.Equal(t, 25000, wt.Points[0].Price)
}

func TestDashboard(t *testing.T) {
	h := newHarness(t)
	h.feed.bodies["00"] = feedBody(row{"평균", "", "2024-05-07", "2,600"})

	d, err := h.svc.GetDashboard(context.Background(), []string{"Pork_Belly", "Chicken"}, "")
	require.NoError(t, err)
	require.Equal(t, "전국", d.Region)
	require.Contains(t, d.Prices, "Pork_Belly")
	require.Contains(t, d.Errors, "Chicken")
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	h.seed(t, belly, "2024-04-01", 1000)
	h.seed(t, belly, "2024-05-01", 2000)
	h.seed(t, belly, "2024-05-07", 2100)

	recs, err := h.svc.GetHistory(context.Background(), "Pork_Belly", "전국", "00", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, 2000, recs[0].Price)

	recs, err = h.svc.GetHistory(context.Background(), "Pork_Neck", "전국", "00", 7)
	require.NoError(t, err)
	require.NotNil(t, recs)
	require.Empty(t, recs)
}
