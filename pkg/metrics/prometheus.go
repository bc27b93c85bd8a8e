package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	feedRequests *prometheus.CounterVec
	feedLatency  *prometheus.HistogramVec
	cacheResults *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg (tests pass a fresh registry).
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		feedRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricepull_feed_requests_total",
				Help: "Upstream feed requests by part and outcome",
			},
			[]string{"part", "outcome"},
		),
		feedLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricepull_feed_request_seconds",
				Help:    "Upstream feed request latency",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
			},
			[]string{"outcome"},
		),
		cacheResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricepull_cache_results_total",
				Help: "Price cache lookups by result (fresh, stale, miss, fallback)",
			},
			[]string{"result"},
		),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricepull_observations_dropped_total",
				Help: "Feed observations dropped during normalization",
			},
			[]string{"reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricepull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricepull_last_price",
				Help: "Last resolved price per series",
			},
			[]string{"part", "region", "grade"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricepull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFeedRequest records one upstream call.
func (r *Recorder) RecordFeedRequest(item, outcome string, seconds float64) {
	r.feedRequests.WithLabelValues(item, outcome).Inc()
	r.feedLatency.WithLabelValues(outcome).Observe(seconds)
}

// RecordCacheResult records the outcome of a cache lookup.
func (r *Recorder) RecordCacheResult(result string) {
	r.cacheResults.WithLabelValues(result).Inc()
}

// RecordDropped records an observation rejected by the normalizer.
func (r *Recorder) RecordDropped(reason string) {
	r.dropped.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last resolved price of a series.
func (r *Recorder) RecordLastPrice(item, region, grade string, price float64) {
	r.lastPrice.WithLabelValues(item, region, grade).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) RecordFeedRequest(string, string, float64) {}
func (Noop) RecordCacheResult(string) {}
func (Noop) RecordDropped(string) {}
func (Noop) RecordError(string) {}
func (Noop) RecordLastPrice(string, string, string, float64) {}
func (Noop) RecordLatency(string, float64) {}
