package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics aggregates the counters and histograms recorded by the
// escrow engine, the settlement bank and the auction pricer.
type EscrowMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	transfers  *prometheus.CounterVec
	fills      prometheus.Counter
}

var (
	metricsOnce sync.Once
	registry    *EscrowMetrics
)

// Metrics returns the lazily-initialised metrics registry.
func Metrics() *EscrowMetrics {
	metricsOnce.Do(func() {
		registry = &EscrowMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "x3fusion",
				Subsystem: "escrow",
				Name:      "operations_total",
				Help:      "Total escrow operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "x3fusion",
				Subsystem: "escrow",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for escrow operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "x3fusion",
				Subsystem: "settlement",
				Name:      "transfers_total",
				Help:      "Total settled transfer dispatches segmented by status.",
			}, []string{"status"}),
			fills: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "x3fusion",
				Subsystem: "auction",
				Name:      "fills_total",
				Help:      "Total successful auction fill requests.",
			}),
		}
		prometheus.MustRegister(registry.operations, registry.latency, registry.transfers, registry.fills)
	})
	return registry
}

// Operation records one escrow operation with its outcome and duration.
func (m *EscrowMetrics) Operation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// TransferSettled records the out-of-band outcome of one transfer dispatch.
func (m *EscrowMetrics) TransferSettled(status string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(status).Inc()
}

// FillRecorded counts one successful auction fill.
func (m *EscrowMetrics) FillRecorded() {
	if m == nil {
		return
	}
	m.fills.Inc()
}
