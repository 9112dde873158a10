package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every exported metric.
const Namespace = "vecsight"

// Extraction Prometheus metrics.
var (
	ExtractionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "extraction_requests_total",
			Help:      "Total number of feature extraction requests",
		},
		[]string{"provider", "status"},
	)

	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Feature extraction duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	ExtractionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "extraction_errors_total",
			Help:      "Total feature extraction errors",
		},
		[]string{"provider", "error_type"},
	)

	ExtractionInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "extraction_in_flight",
			Help:      "Extractions currently holding a worker slot",
		},
	)

	ExtractionQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "extraction_queued",
			Help:      "Extractions waiting for a worker slot",
		},
	)

	ModelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "model_load_duration_seconds",
			Help:      "Feature model load duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	FeatureCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "feature_cache_total",
			Help:      "Feature cache hits and misses",
		},
		[]string{"layer", "result"}, // layer: l1/l2, result: hit/miss
	)
)

// Vector store Prometheus metrics.
var (
	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "store_operations_total",
			Help:      "Total vector store operations",
		},
		[]string{"op", "status"},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Vector store operation duration in seconds, retries included",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"op"},
	)

	StoreRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "store_retries_total",
			Help:      "Vector store attempts retried after a transient error",
		},
		[]string{"op"},
	)
)

// Search Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by mode and outcome status",
		},
		[]string{"mode", "status"},
	)

	SearchResultsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_results_returned",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)
)

var registerOnce sync.Once

// RegisterMetrics registers the domain metrics with the default registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ExtractionRequestsTotal,
			ExtractionDuration,
			ExtractionErrorsTotal,
			ExtractionInFlight,
			ExtractionQueued,
			ModelLoadDuration,
			FeatureCacheTotal,
			StoreOperationsTotal,
			StoreOperationDuration,
			StoreRetriesTotal,
			SearchRequestsTotal,
			SearchResultsReturned,
		)
		prometheus.MustRegister(httpCollectors()...)
	})
}
