package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Refresh cycle
	RefreshRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegenio_radar_refresh_runs_total",
			Help: "Radar refresh cycles by outcome",
		},
		[]string{"outcome"}, // "ok", "degraded", "skipped", "failed"
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cinegenio_radar_refresh_duration_seconds",
			Help:    "Duration of radar refresh cycles that fetched at least one category",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	CategoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegenio_radar_category_fetches_total",
			Help: "Category fetches by category and result",
		},
		[]string{"category", "result"}, // result: "ok", "error"
	)

	ItemsPersisted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cinegenio_radar_items",
			Help: "Radar items in the visible snapshot",
		},
	)

	// Fetch queue
	FetchQueueWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cinegenio_fetch_queue_wait_seconds",
			Help:    "Time a catalog request waited in the fetch queue",
			Buckets: []float64{0.01, 0.05, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// Oracle
	OracleCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegenio_oracle_calls_total",
			Help: "Recommendation oracle calls by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "rejected"
	)
)

// ObserveQueueWait records how long a task waited before running.
func ObserveQueueWait(d time.Duration) {
	FetchQueueWait.Observe(d.Seconds())
}

// RecordCategoryFetch counts one category fetch.
func RecordCategoryFetch(category string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CategoryFetches.WithLabelValues(category, result).Inc()
}

// RecordRefresh counts a finished refresh cycle.
func RecordRefresh(outcome string, d time.Duration) {
	RefreshRuns.WithLabelValues(outcome).Inc()
	if d > 0 {
		RefreshDuration.Observe(d.Seconds())
	}
}
