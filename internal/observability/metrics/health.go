package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// HealthMetrics tracks health checks and remediations.
type HealthMetrics struct {
	collectorSet

	Checks        prometheus.Counter
	CheckDuration prometheus.Histogram
	Issues        *prometheus.GaugeVec
	Remediations  *prometheus.CounterVec
	CPUPercent    prometheus.Gauge
	MemoryPercent prometheus.Gauge
	DiskPercent   prometheus.Gauge
}

// NewHealthMetrics creates and registers health metrics.
func NewHealthMetrics(registry prometheus.Registerer) (*HealthMetrics, error) {
	m := &HealthMetrics{
		Checks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearken_health_checks_total",
			Help: "Completed health cycles",
		}),
		CheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hearken_health_check_duration_seconds",
			Help:    "Time taken by one health cycle",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		}),
		Issues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hearken_health_issues",
			Help: "Open issues by severity in the latest report",
		}, []string{"severity"}),
		Remediations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_health_remediations_total",
			Help: "Remediation actions by outcome",
		}, []string{"action", "status"}),
		CPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_health_cpu_percent",
			Help: "System CPU usage at the last health cycle",
		}),
		MemoryPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_health_memory_percent",
			Help: "System memory usage at the last health cycle",
		}),
		DiskPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_health_disk_percent",
			Help: "Disk usage of the data path at the last health cycle",
		}),
	}
	m.collectorSet = collectorSet{
		m.Checks, m.CheckDuration, m.Issues, m.Remediations,
		m.CPUPercent, m.MemoryPercent, m.DiskPercent,
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register health metrics: %w", err)
	}
	return m, nil
}
