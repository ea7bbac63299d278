// Package metrics provides Prometheus metrics for the scraper.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the scraper.
type Metrics struct {
	// Page metrics
	PagesSucceeded *prometheus.CounterVec
	PagesSkipped   *prometheus.CounterVec
	PagesFailed    *prometheus.CounterVec

	// Record metrics
	RecordsWritten *prometheus.CounterVec
	LastSequenceID *prometheus.GaugeVec

	// Image metrics
	ImagesUploaded      *prometheus.CounterVec
	ImagesReused        *prometheus.CounterVec
	ImagesPlaceholdered *prometheus.CounterVec

	// Timing metrics
	FetchDuration     *prometheus.HistogramVec
	PageTaskDuration  *prometheus.HistogramVec
	ReconcileDuration *prometheus.HistogramVec

	// Pipeline metrics
	TasksInFlight prometheus.Gauge

	// Error metrics
	FetchErrors   *prometheus.CounterVec
	ExtractErrors *prometheus.CounterVec
	SinkErrors    *prometheus.CounterVec
	RetryAttempts *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "retail_scraper"
	}

	m := &Metrics{
		PagesSucceeded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_succeeded_total",
				Help:      "Total number of pages fetched and extracted successfully",
			},
			[]string{"retailer"},
		),
		PagesSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_skipped_total",
				Help:      "Total number of pages skipped after a permanent failure",
			},
			[]string{"retailer"},
		),
		PagesFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_failed_total",
				Help:      "Total number of pages that exhausted their retries",
			},
			[]string{"retailer"},
		),
		RecordsWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_written_total",
				Help:      "Total number of product records appended to the ledger",
			},
			[]string{"retailer"},
		),
		LastSequenceID: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_sequence_id",
				Help:      "Highest sequence id written for a retailer",
			},
			[]string{"retailer"},
		),
		ImagesUploaded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "images_uploaded_total",
				Help:      "Total number of product images uploaded to the content store",
			},
			[]string{"retailer"},
		),
		ImagesReused: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "images_reused_total",
				Help:      "Total number of images answered from the store or a prior run",
			},
			[]string{"retailer"},
		),
		ImagesPlaceholdered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "images_placeholdered_total",
				Help:      "Total number of records that fell back to the placeholder URL",
			},
			[]string{"retailer"},
		),
		FetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time to fetch one listing page",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
			},
			[]string{"retailer"},
		),
		PageTaskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "page_task_duration_seconds",
				Help:      "Total time for one page task (fetch + extract + images)",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
			[]string{"retailer"},
		),
		ReconcileDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Time to reconcile a retailer's ledger",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"retailer"},
		),
		TasksInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks_in_flight",
				Help:      "Number of page tasks currently being processed",
			},
		),
		FetchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Total number of fetch failures by classification",
			},
			[]string{"retailer", "kind"},
		),
		ExtractErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extract_errors_total",
				Help:      "Total number of pages the extractor rejected",
			},
			[]string{"retailer"},
		),
		SinkErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_errors_total",
				Help:      "Total number of failed upsert batches",
			},
			[]string{"retailer"},
		),
		RetryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"retailer", "operation"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}
