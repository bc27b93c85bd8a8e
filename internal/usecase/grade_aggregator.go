package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"PricePull/internal/domain/models"
	applogger "PricePull/pkg/logger"

	"go.uber.org/multierr"
)

// GradeResult is one resolved grade of an all-grades query.
type GradeResult struct {
	Grade  string
	Record models.PriceRecord
	Source models.Source
}

// Aggregate is the outcome of AggregateAllGrades.
type Aggregate struct {
	ItemKey string
	Region  string
	Price   int
	Date    time.Time
	Grades  []GradeResult
}

// Source is api when at least one grade was fetched live.
func (a Aggregate) Source() models.Source {
	for _, g := range a.Grades {
		if g.Source == models.SourceAPI {
			return models.SourceAPI
		}
	}
	return models.SourceCache
}

// GradeResolver resolves a single grade. It is called concurrently.
type GradeResolver func(ctx context.Context, grade string) (GradeResult, error)

type GradeAggregator struct {
	l *applogger.Logger
}

func NewGradeAggregator() *GradeAggregator {
	return &GradeAggregator{l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (a *GradeAggregator) SetLogger(l *applogger.Logger) {
	if l != nil {
		a.l = l
	}
}

// AggregateAllGrades resolves every grade concurrently and averages what came back.
// Failed grades are left out of the breakdown. With nothing resolved it returns
// models.ErrNotFound when every grade was empty, models.ErrServiceUnavailable
// when the feed failed, or the context error if the caller went away.
func (a *GradeAggregator) AggregateAllGrades(ctx context.Context, itemKey, region string, grades []string, resolve GradeResolver) (Aggregate, error) {
	type item struct {
		grade string
		res   GradeResult
		err   error
	}
	ch := make(chan item, len(grades))
	var wg sync.WaitGroup

	for _, g := range grades {
		wg.Add(1)
		go func(grade string) {
			defer wg.Done()
			res, err := resolve(ctx, grade)
			ch <- item{grade, res, err}
		}(g)
	}

	go func() { wg.Wait(); close(ch) }()

	agg := Aggregate{ItemKey: itemKey, Region: region}
	var failed error
	for it := range ch {
		if it.err != nil {
			failed = multierr.Append(failed, fmt.Errorf("grade %s: %w", it.grade, it.err))
			continue
		}
		it.res.Grade = it.grade
		agg.Grades = append(agg.Grades, it.res)
	}

	if failed != nil {
		a.l.Warn("some grades did not resolve",
			applogger.String("part", itemKey),
			applogger.String("region", region),
			applogger.Int("failed", len(multierr.Errors(failed))),
			applogger.Int("resolved", len(agg.Grades)),
			applogger.Error(failed),
		)
	}

	if len(agg.Grades) == 0 {
		if err := ctx.Err(); err != nil {
			return Aggregate{}, err
		}
		return Aggregate{}, classifyAll(failed)
	}

	sort.Slice(agg.Grades, func(i, j int) bool { return agg.Grades[i].Grade < agg.Grades[j].Grade })
	sum := 0
	for _, g := range agg.Grades {
		sum += g.Record.Price
		if g.Record.Date.After(agg.Date) {
			agg.Date = g.Record.Date
		}
	}
	agg.Price = sum / len(agg.Grades)
	return agg, nil
}
