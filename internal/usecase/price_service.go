package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PricePull/internal/catalog"
	"PricePull/internal/domain/models"
	domrepo "PricePull/internal/domain/repository"
	"PricePull/internal/service/kamis"
	"PricePull/internal/service/normalize"
	applogger "PricePull/pkg/logger"
	"PricePull/pkg/util"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWeeks = 8
	MaxWeeks     = 52
	DefaultDays  = 30
	MaxDays      = 365
)

// PriceServiceOption configures PriceService.
type PriceServiceOption func(*PriceServiceConfig)

type PriceServiceConfig struct {
	LookbackDays      int
	TrendLookbackDays int
	MaxTrendDays      int
	GradeConcurrency  int
	Location          *time.Location
	Now               func() time.Time
}

// WithLookbackDays sets the feed window of a current-price query.
func WithLookbackDays(n int) PriceServiceOption {
	return func(c *PriceServiceConfig) {
		if n > 0 {
			c.LookbackDays = n
		}
	}
}

// WithTrendLookbackDays bounds how far back the previous price is searched.
func WithTrendLookbackDays(n int) PriceServiceOption {
	return func(c *PriceServiceConfig) {
		if n > 0 {
			c.TrendLookbackDays = n
		}
	}
}

// WithGradeConcurrency limits parallel per-grade feed calls of a weekly trend.
func WithGradeConcurrency(n int) PriceServiceOption {
	return func(c *PriceServiceConfig) {
		if n > 0 {
			c.GradeConcurrency = n
		}
	}
}

// WithLocation sets the time zone that decides what "today" is.
func WithLocation(loc *time.Location) PriceServiceOption {
	return func(c *PriceServiceConfig) {
		if loc != nil {
			c.Location = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PriceServiceOption {
	return func(c *PriceServiceConfig) {
		if now != nil {
			c.Now = now
		}
	}
}

// PriceService answers current-price and weekly-trend queries. Every query reads
// through the price cache and drives the feed pipeline only when needed.
type PriceService struct {
	cfg        *PriceServiceConfig
	catalog    *catalog.Catalog
	feed       domrepo.FeedClient
	normalizer *normalize.Normalizer
	selector   *Selector
	aggregator *GradeAggregator
	cache      *PriceCache
	publisher  domrepo.Publisher
	metrics    domrepo.Metrics
	l          *applogger.Logger
}

func NewPriceService(
	cat *catalog.Catalog,
	feed domrepo.FeedClient,
	normalizer *normalize.Normalizer,
	selector *Selector,
	aggregator *GradeAggregator,
	cache *PriceCache,
	publisher domrepo.Publisher,
	metrics domrepo.Metrics,
	opts ...PriceServiceOption,
) *PriceService {
	cfg := &PriceServiceConfig{
		LookbackDays:      7,
		TrendLookbackDays: 30,
		MaxTrendDays:      MaxDays,
		GradeConcurrency:  4,
		Location:          time.UTC,
		Now:               time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &PriceService{
		cfg:        cfg,
		catalog:    cat,
		feed:       feed,
		normalizer: normalizer,
		selector:   selector,
		aggregator: aggregator,
		cache:      cache,
		publisher:  publisher,
		metrics:    metrics,
		l:          applogger.Nop(),
	}
}

// SetLogger injects a structured logger.
func (s *PriceService) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// Parts lists the catalog items callers may ask for.
func (s *PriceService) Parts() []catalog.Item {
	return s.catalog.Items()
}

// GetCurrentPrice resolves the representative price of one part, region and grade.
// Grade 00 on a graded part averages the per-grade prices.
func (s *PriceService) GetCurrentPrice(ctx context.Context, itemKey, region, grade string) (*models.CurrentPrice, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("current_price", time.Since(start).Seconds()) }()

	it, key, err := s.selection(itemKey, region, grade)
	if err != nil {
		return nil, err
	}
	today, asOf := s.days()

	if grades := s.catalog.FanOutGrades(it, key.Grade); len(grades) > 0 {
		return s.currentAllGrades(ctx, it, key, grades, today, asOf)
	}

	res, err := s.resolve(ctx, key, today, asOf)
	if err != nil {
		s.metrics.RecordError("current_price")
		return nil, err
	}
	out := s.currentPrice(it, key, res.Record, res.Source)
	out.Trend = s.trend(ctx, key, res.Record)
	// A single-grade answer still carries its one-entry breakdown; imports are labelled by origin.
	label := key.Grade
	if it.OriginGrade != "" {
		label = it.OriginGrade
	}
	out.GradePrices = []models.GradePrice{{
		Grade:     label,
		GradeName: s.catalog.GradeName(label),
		Price:     out.Price,
		Unit:      out.Unit,
		PriceDate: out.AsOfDate,
		Trend:     out.Trend,
		Source:    out.Source,
	}}
	s.emit(ctx, res.Record, res.Source)
	return out, nil
}

func (s *PriceService) currentAllGrades(ctx context.Context, it catalog.Item, key models.PriceKey, grades []string, today, asOf time.Time) (*models.CurrentPrice, error) {
	agg, err := s.aggregator.AggregateAllGrades(ctx, it.Key, key.Region, grades, func(ctx context.Context, grade string) (GradeResult, error) {
		return s.resolve(ctx, key.WithGrade(grade), today, asOf)
	})
	if err != nil {
		s.metrics.RecordError("current_price")
		return nil, err
	}

	rec := models.PriceRecord{
		ItemKey:    key.ItemKey,
		Region:     key.Region,
		Grade:      key.Grade,
		Date:       agg.Date,
		Price:      agg.Price,
		InsertedAt: s.cfg.Now().UTC(),
	}
	source := agg.Source()
	out := s.currentPrice(it, key, rec, source)
	out.Trend = s.trend(ctx, key, rec)
	for _, g := range agg.Grades {
		out.GradePrices = append(out.GradePrices, models.GradePrice{
			Grade:     g.Grade,
			GradeName: s.catalog.GradeName(g.Grade),
			Price:     g.Record.Price,
			Unit:      s.catalog.Unit(),
			PriceDate: util.FormatDate(g.Record.Date),
			Trend:     s.trend(ctx, key.WithGrade(g.Grade), g.Record),
			Source:    g.Source,
		})
	}

	if source == models.SourceAPI {
		if err := s.cache.Put(ctx, rec); err != nil {
			s.l.Warn("persist aggregate failed", applogger.String("key", key.String()), applogger.Error(err))
		}
	}
	s.emit(ctx, rec, source)
	return out, nil
}

// resolve runs the cache policy for one key: fresh records are served as is,
// otherwise the feed is asked and a stale record is the fallback.
func (s *PriceService) resolve(ctx context.Context, key models.PriceKey, today, asOf time.Time) (GradeResult, error) {
	held, freshness := s.cache.Lookup(ctx, key, today)
	if freshness == Fresh {
		return GradeResult{Grade: key.Grade, Record: held, Source: models.SourceCache}, nil
	}

	from := asOf.AddDate(0, 0, -(s.cfg.LookbackDays - 1))
	obs, err := s.observe(ctx, models.FeedQuery{PriceKey: key, From: from, To: asOf}, asOf)
	var best models.NormalizedObservation
	if err == nil {
		best, err = s.selector.Select(obs, key.Region, key.Grade)
	}
	if err != nil {
		if freshness == Stale {
			s.metrics.RecordCacheResult("stale_fallback")
			s.l.Info("serving stale price",
				applogger.String("key", key.String()),
				applogger.Date("price_date", held.Date),
				applogger.Error(err),
			)
			return GradeResult{Grade: key.Grade, Record: held, Source: models.SourceCache}, nil
		}
		return GradeResult{}, classify(err)
	}

	rec := models.PriceRecord{
		ItemKey:    key.ItemKey,
		Region:     key.Region,
		Grade:      key.Grade,
		Date:       best.Date,
		Price:      best.Price,
		InsertedAt: s.cfg.Now().UTC(),
	}
	if err := s.cache.Put(ctx, rec); err != nil {
		s.l.Warn("persist price failed", applogger.String("key", key.String()), applogger.Error(err))
	}
	return GradeResult{Grade: key.Grade, Record: rec, Source: models.SourceAPI}, nil
}

// observe runs fetch, parse and normalize for one feed query.
func (s *PriceService) observe(ctx context.Context, q models.FeedQuery, asOf time.Time) ([]models.NormalizedObservation, error) {
	body, _, err := s.feed.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	raws, err := kamis.Parse(body)
	if err != nil {
		s.metrics.RecordError("feed_parse")
		s.l.Warn("feed payload rejected", applogger.String("key", q.String()), applogger.Error(err))
		return nil, err
	}
	return s.normalizer.Normalize(raws, q.Region, q.ItemKey, asOf), nil
}

// GetWeeklyTrend returns weekly mean prices for the last weeks weeks ending at
// the feed's as-of date.
func (s *PriceService) GetWeeklyTrend(ctx context.Context, itemKey, region, grade string, weeks int) (*models.WeeklyTrend, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("weekly_trend", time.Since(start).Seconds()) }()

	it, key, err := s.selection(itemKey, region, grade)
	if err != nil {
		return nil, err
	}
	if weeks <= 0 {
		weeks = DefaultWeeks
	}
	if weeks > MaxWeeks {
		weeks = MaxWeeks
	}
	_, asOf := s.days()
	from := util.StartOfWeek(asOf).AddDate(0, 0, -7*(weeks-1))
	if floor := asOf.AddDate(0, 0, -s.cfg.MaxTrendDays); from.Before(floor) {
		from = floor
	}

	grades := s.catalog.FanOutGrades(it, key.Grade)
	if len(grades) == 0 {
		grades = []string{key.Grade}
	}

	type gradeSeries struct {
		daily  []models.DailyPrice
		source models.Source
		err    error
	}
	results := make([]gradeSeries, len(grades))
	var g errgroup.Group
	g.SetLimit(s.cfg.GradeConcurrency)
	for i, gr := range grades {
		i, gr := i, gr
		g.Go(func() error {
			daily, source, err := s.dailySeries(ctx, key.WithGrade(gr), from, asOf)
			results[i] = gradeSeries{daily: daily, source: source, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		series [][]models.DailyPrice
		failed error
	)
	source := models.SourceAPI
	for i, r := range results {
		if r.err != nil {
			failed = multierr.Append(failed, fmt.Errorf("grade %s: %w", grades[i], r.err))
			continue
		}
		series = append(series, r.daily)
		if r.source == models.SourceCache {
			source = models.SourceCache
		}
	}
	if len(series) == 0 {
		s.metrics.RecordError("weekly_trend")
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, classifyAll(failed)
	}
	if failed != nil {
		s.l.Warn("weekly trend missing grades", applogger.String("key", key.String()), applogger.Error(failed))
	}

	points := Bucketize(it.Key, ForwardFill(MergeDaily(series...)), weeks, asOf)
	if len(points) == 0 {
		return nil, models.ErrNotFound
	}
	return &models.WeeklyTrend{
		ItemKey: it.Key,
		Region:  key.Region,
		Grade:   key.Grade,
		Weeks:   weeks,
		Source:  source,
		Points:  points,
	}, nil
}

// dailySeries fetches one grade's daily prices over [from, to] and writes them
// through to the cache. When the feed fails or has nothing, the stored series is used.
func (s *PriceService) dailySeries(ctx context.Context, key models.PriceKey, from, to time.Time) ([]models.DailyPrice, models.Source, error) {
	obs, err := s.observe(ctx, models.FeedQuery{PriceKey: key, From: from, To: to}, to)
	var daily []models.DailyPrice
	if err == nil {
		if daily = s.selector.SelectDaily(obs, key.Region, key.Grade); len(daily) == 0 {
			err = models.ErrNotFound
		}
	}
	if err == nil {
		now := s.cfg.Now().UTC()
		recs := make([]models.PriceRecord, 0, len(daily))
		for _, d := range daily {
			recs = append(recs, models.PriceRecord{
				ItemKey: key.ItemKey, Region: key.Region, Grade: key.Grade,
				Date: d.Date, Price: d.Price, InsertedAt: now,
			})
		}
		if perr := s.cache.Put(ctx, recs...); perr != nil {
			s.l.Warn("persist series failed", applogger.String("key", key.String()), applogger.Error(perr))
		}
		return daily, models.SourceAPI, nil
	}

	stored, serr := s.cache.Series(ctx, key, from, to)
	if serr == nil && len(stored) > 0 {
		s.metrics.RecordCacheResult("stale_fallback")
		s.l.Info("serving stored series",
			applogger.String("key", key.String()),
			applogger.Int("days", len(stored)),
			applogger.Error(err),
		)
		return stored, models.SourceCache, nil
	}
	if serr != nil {
		err = multierr.Append(err, serr)
	}
	return nil, "", err
}

// GetDashboard resolves the current price of several parts concurrently.
// Parts that fail are reported in Errors and do not fail the call.
func (s *PriceService) GetDashboard(ctx context.Context, parts []string, region string) (*models.Dashboard, error) {
	if len(parts) == 0 {
		for _, it := range s.catalog.Items() {
			parts = append(parts, it.Key)
		}
	}
	res := &models.Dashboard{
		Region: s.catalog.NormalizeRegion(region),
		Prices: map[string]*models.CurrentPrice{},
		Errors: map[string]string{},
	}

	type item struct {
		part string
		val  *models.CurrentPrice
		err  error
	}
	ch := make(chan item, len(parts))
	var wg sync.WaitGroup
	for _, p := range parts {
		wg.Add(1)
		go func(part string) {
			defer wg.Done()
			v, err := s.GetCurrentPrice(ctx, part, region, catalog.AllGrades)
			ch <- item{part, v, err}
		}(p)
	}
	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			res.Errors[it.part] = it.err.Error()
			continue
		}
		res.Prices[it.part] = it.val
	}
	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}

// GetHistory returns the stored records of one key over the last days days.
func (s *PriceService) GetHistory(ctx context.Context, itemKey, region, grade string, days int) ([]models.PriceRecord, error) {
	_, key, err := s.selection(itemKey, region, grade)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultDays
	}
	if days > MaxDays {
		days = MaxDays
	}
	_, asOf := s.days()
	recs, err := s.cache.Records(ctx, key, asOf.AddDate(0, 0, -(days-1)), asOf)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []models.PriceRecord{}
	}
	return recs, nil
}

// selection validates a request against the catalog and canonicalises it.
func (s *PriceService) selection(itemKey, region, grade string) (catalog.Item, models.PriceKey, error) {
	it, ok := s.catalog.Item(itemKey)
	if !ok {
		return catalog.Item{}, models.PriceKey{}, fmt.Errorf("%w: %s", models.ErrUnknownItem, itemKey)
	}
	region = s.catalog.NormalizeRegion(region)
	if _, ok := s.catalog.RegionCode(region); !ok {
		return catalog.Item{}, models.PriceKey{}, fmt.Errorf("%w: %s", models.ErrUnknownRegion, region)
	}
	if grade == "" {
		grade = catalog.AllGrades
	}
	if !s.catalog.ValidGrade(it, grade) {
		return catalog.Item{}, models.PriceKey{}, fmt.Errorf("%w: %s for %s", models.ErrUnknownGrade, grade, it.Key)
	}
	return it, models.PriceKey{ItemKey: it.Key, Region: region, Grade: grade}, nil
}

// days returns today and the feed's as-of date (yesterday).
func (s *PriceService) days() (time.Time, time.Time) {
	now := s.cfg.Now()
	return util.Today(now, s.cfg.Location), util.Yesterday(now, s.cfg.Location)
}

func (s *PriceService) currentPrice(it catalog.Item, key models.PriceKey, rec models.PriceRecord, source models.Source) *models.CurrentPrice {
	return &models.CurrentPrice{
		ItemKey:     it.Key,
		DisplayName: it.Name,
		Region:      key.Region,
		Grade:       key.Grade,
		Price:       rec.Price,
		Unit:        s.catalog.Unit(),
		Trend:       models.TrendFlat,
		AsOfDate:    util.FormatDate(rec.Date),
		Source:      source,
		ResolvedAt:  s.cfg.Now().UTC(),
	}
}

// trend compares rec with the latest stored price of key dated before it.
func (s *PriceService) trend(ctx context.Context, key models.PriceKey, rec models.PriceRecord) models.Trend {
	prev, err := s.cache.Previous(ctx, key, rec.Date, s.cfg.TrendLookbackDays)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.l.Debug("previous price lookup failed", applogger.String("key", key.String()), applogger.Error(err))
		}
		return models.TrendFlat
	}
	return TrendOf(rec.Price, prev.Price)
}

// emit publishes a freshly fetched price. Cache hits are not re-announced.
func (s *PriceService) emit(ctx context.Context, rec models.PriceRecord, source models.Source) {
	s.metrics.RecordLastPrice(rec.ItemKey, rec.Region, rec.Grade, float64(rec.Price))
	if source != models.SourceAPI || s.publisher == nil {
		return
	}
	ev := models.PriceEvent{
		ItemKey:  rec.ItemKey,
		Region:   rec.Region,
		Grade:    rec.Grade,
		Price:    rec.Price,
		AsOfDate: util.FormatDate(rec.Date),
		Source:   source,
		EmitTime: s.cfg.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.metrics.RecordError("publish")
		s.l.Warn("publish price event failed", applogger.String("key", rec.Key().String()), applogger.Error(err))
	}
}

// TrendOf compares a price with the previous one.
func TrendOf(cur, prev int) models.Trend {
	switch {
	case prev <= 0 || cur == prev:
		return models.TrendFlat
	case cur > prev:
		return models.TrendUp
	default:
		return models.TrendDown
	}
}

// classify maps a pipeline error to what callers see. Feed failures collapse into
// models.ErrServiceUnavailable; everything else keeps its identity.
func classify(err error) error {
	if err == nil || errors.Is(err, models.ErrNotFound) || models.IsInvalidSelection(err) {
		return err
	}
	if models.IsFeedError(err) {
		return fmt.Errorf("%w: %w", models.ErrServiceUnavailable, err)
	}
	return err
}

// classifyAll picks the caller-facing error for a set of per-grade failures.
// It reports models.ErrNotFound only when every grade came back empty; a feed
// outage on any grade wins over other failures.
func classifyAll(err error) error {
	if err == nil {
		return models.ErrNotFound
	}
	errs := multierr.Errors(err)
	for _, e := range errs {
		if errors.Is(e, models.ErrServiceUnavailable) {
			return e
		}
		if models.IsFeedError(e) {
			return classify(e)
		}
	}
	for _, e := range errs {
		if !errors.Is(e, models.ErrNotFound) {
			return classify(e)
		}
	}
	return fmt.Errorf("%w: %v", models.ErrNotFound, err)
}
