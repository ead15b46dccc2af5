// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	backfillJobsTotal     *prometheus.CounterVec
	backfillDatasetsTotal *prometheus.CounterVec
	fetchRetriesTotal     prometheus.Counter
	fetchBytesTotal       prometheus.Counter
	fetchDurationSeconds  prometheus.Histogram
	parseDurationSeconds  prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		backfillJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geo_backfill_jobs_total",
				Help: "Total number of backfill jobs finalized, labeled by terminal status.",
			},
			[]string{"status"},
		)

		backfillDatasetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geo_backfill_datasets_total",
				Help: "Total number of dataset items settled, labeled by item status.",
			},
			[]string{"status"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "geo_fetch_retries_total",
				Help: "Total number of archive download retry attempts.",
			},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "geo_fetch_bytes_total",
				Help: "Total number of archive bytes downloaded.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "geo_fetch_duration_seconds",
				Help:    "Histogram of archive download latencies.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
		)

		parseDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "geo_parse_duration_seconds",
				Help:    "Histogram of SOFT archive parse latencies.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		)
	})
}

// JobFinalized counts a job reaching a terminal status.
func JobFinalized(status string) {
	if backfillJobsTotal != nil {
		backfillJobsTotal.WithLabelValues(status).Inc()
	}
}

// ItemSettled counts one dataset item reaching a terminal status.
func ItemSettled(status string) {
	if backfillDatasetsTotal != nil {
		backfillDatasetsTotal.WithLabelValues(status).Inc()
	}
}

// FetchRetried counts one retry attempt of an archive download.
func FetchRetried() {
	if fetchRetriesTotal != nil {
		fetchRetriesTotal.Inc()
	}
}

// AddFetchBytes accumulates downloaded archive bytes.
func AddFetchBytes(n int64) {
	if fetchBytesTotal != nil {
		fetchBytesTotal.Add(float64(n))
	}
}

// ObserveFetchDuration records one archive download latency.
func ObserveFetchDuration(d time.Duration) {
	if fetchDurationSeconds != nil {
		fetchDurationSeconds.Observe(d.Seconds())
	}
}

// ObserveParseDuration records one archive parse latency.
func ObserveParseDuration(d time.Duration) {
	if parseDurationSeconds != nil {
		parseDurationSeconds.Observe(d.Seconds())
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
