package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics tracks persistence calls.
type DatastoreMetrics struct {
	collectorSet

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	rows       *prometheus.GaugeVec
	reachable  prometheus.Gauge
}

var _ Recorder = (*DatastoreMetrics)(nil)

// NewDatastoreMetrics creates and registers datastore metrics.
func NewDatastoreMetrics(registry prometheus.Registerer) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_datastore_operations_total",
			Help: "Datastore operations by outcome",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearken_datastore_operation_duration_seconds",
			Help:    "Time taken by datastore operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_datastore_errors_total",
			Help: "Datastore errors by category",
		}, []string{"operation", "error_type"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hearken_datastore_rows",
			Help: "Row count per table at the last health check",
		}, []string{"table"}),
		reachable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_datastore_reachable",
			Help: "1 when the last ping succeeded",
		}),
	}
	m.collectorSet = collectorSet{m.operations, m.duration, m.errors, m.rows, m.reachable}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register datastore metrics: %w", err)
	}
	return m, nil
}

// RecordOperation implements Recorder.
func (m *DatastoreMetrics) RecordOperation(operation, status string) {
	m.operations.WithLabelValues(operation, status).Inc()
	if operation == OpPing {
		if status == StatusSuccess {
			m.reachable.Set(1)
		} else {
			m.reachable.Set(0)
		}
	}
}

// RecordDuration implements Recorder.
func (m *DatastoreMetrics) RecordDuration(operation string, seconds float64) {
	m.duration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *DatastoreMetrics) RecordError(operation, errorType string) {
	m.errors.WithLabelValues(operation, errorType).Inc()
}

// SetRowCount records a table size.
func (m *DatastoreMetrics) SetRowCount(table string, rows int64) {
	m.rows.WithLabelValues(table).Set(float64(rows))
}

// Reachable returns the gauge set by ping outcomes.
func (m *DatastoreMetrics) Reachable() prometheus.Gauge {
	return m.reachable
}
