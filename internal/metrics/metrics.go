// Package metrics provides Prometheus instrumentation for the SDK.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts escrow operations by backend, operation, and result.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentvault",
			Name:      "operations_total",
			Help:      "Total escrow operations by backend, operation, and result.",
		},
		[]string{"backend", "op", "result"},
	)

	// OperationDuration observes operation latency by backend and operation.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentvault",
			Name:      "operation_duration_seconds",
			Help:      "Escrow operation duration in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend", "op"},
	)

	// IndexerFallbacksTotal counts reads that fell back to the ledger after
	// an indexer failure.
	IndexerFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentvault",
			Name:      "indexer_fallbacks_total",
			Help:      "Reads served by the ledger after the indexer failed.",
		},
		[]string{"op"},
	)

	// IndexerWriteFailuresTotal counts best-effort indexer writes that failed.
	IndexerWriteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentvault",
			Name:      "indexer_write_failures_total",
			Help:      "Best-effort indexer writes that failed, by endpoint.",
		},
		[]string{"endpoint"},
	)

	// DecodeWarningsTotal counts account or row decodes that hit unknown
	// enum codes and substituted defaults.
	DecodeWarningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "agentvault",
		Name:      "decode_warnings_total",
		Help:      "Decodes that substituted defaults for unknown enum codes.",
	})
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		IndexerFallbacksTotal,
		IndexerWriteFailuresTotal,
		DecodeWarningsTotal,
	)
}

// ObserveOp records one operation's outcome and latency.
func ObserveOp(backend, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(backend, op, result).Inc()
	OperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus metrics HTTP handler for a /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
