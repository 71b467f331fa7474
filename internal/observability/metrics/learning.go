package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// LearningMetrics tracks the learning loop and store.
type LearningMetrics struct {
	collectorSet

	Cycles            *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	Observations      prometheus.Counter
	Flushes           *prometheus.CounterVec
	InboxDropped      prometheus.Counter
	Patterns          prometheus.Gauge
	FalsePositiveRate prometheus.Gauge
	Version           prometheus.Gauge
}

// NewLearningMetrics creates and registers learning metrics.
func NewLearningMetrics(registry prometheus.Registerer) (*LearningMetrics, error) {
	m := &LearningMetrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_learning_cycles_total",
			Help: "Learning cycles by outcome",
		}, []string{"status"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hearken_learning_cycle_duration_seconds",
			Help:    "Time taken by one learning cycle",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		}),
		Observations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearken_learning_observations_total",
			Help: "Detections folded into learned patterns",
		}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_learning_flushes_total",
			Help: "Learning state flushes by outcome",
		}, []string{"status"}),
		InboxDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearken_learning_inbox_dropped_total",
			Help: "Detections dropped because the learning inbox was full",
		}),
		Patterns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_learning_patterns",
			Help: "Learned patterns in the current state",
		}),
		FalsePositiveRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_learning_false_positive_rate",
			Help: "Estimated share of recent detections flagged as false positives",
		}),
		Version: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_learning_state_version",
			Help: "Version of the committed learning state",
		}),
	}
	m.collectorSet = collectorSet{
		m.Cycles, m.CycleDuration, m.Observations, m.Flushes,
		m.InboxDropped, m.Patterns, m.FalsePositiveRate, m.Version,
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register learning metrics: %w", err)
	}
	return m, nil
}
