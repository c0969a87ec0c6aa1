package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the memory core.
type Metrics struct {
	// Store operations by entity and operation ("project","create")
	Operations *prometheus.CounterVec

	// Operation errors by taxonomy class ("not_found","conflict","validation")
	OperationErrors *prometheus.CounterVec

	// Snapshot outcomes
	SnapshotDuration prometheus.Histogram
	SnapshotFailures prometheus.Counter
	SnapshotSkipped  prometheus.Counter

	// Live entity counts, set from GetMemoryStats
	Entities *prometheus.GaugeVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics. Call once at startup;
// tests run without metrics (services treat a nil *Metrics as disabled).
func InitMetrics() *Metrics {
	metrics := &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engram_store_operations_total",
			Help: "Total number of store operations by entity and operation",
		}, []string{"entity", "operation"}),

		OperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "engram_store_errors_total",
			Help: "Total number of failed store operations by error class",
		}, []string{"class"}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "engram_snapshot_duration_seconds",
			Help:    "Snapshot write latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		SnapshotFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engram_snapshot_failures_total",
			Help: "Total number of failed snapshot attempts",
		}),

		SnapshotSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engram_snapshot_ticks_skipped_total",
			Help: "Autosave ticks skipped because a snapshot was still in flight",
		}),

		Entities: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engram_entities",
			Help: "Current number of live entities per collection",
		}, []string{"collection"}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance (nil if not initialized).
func GetMetrics() *Metrics {
	return globalMetrics
}

func (m *Metrics) recordOp(entity, operation string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(entity, operation).Inc()
}

func (m *Metrics) recordError(class string) {
	if m == nil {
		return
	}
	m.OperationErrors.WithLabelValues(class).Inc()
}
