package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotifyMetrics tracks alert outlets.
type NotifyMetrics struct {
	collectorSet

	MQTTConnected  prometheus.Gauge
	Delivered      *prometheus.CounterVec
	Errors         *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec
}

// NewNotifyMetrics creates and registers notification metrics.
func NewNotifyMetrics(registry prometheus.Registerer) (*NotifyMetrics, error) {
	m := &NotifyMetrics{
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_notify_mqtt_connected",
			Help: "1 while the MQTT client is connected",
		}),
		Delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_notify_delivered_total",
			Help: "Notifications delivered by outlet",
		}, []string{"outlet"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_notify_errors_total",
			Help: "Notification failures by outlet",
		}, []string{"outlet"}),
		PublishLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearken_notify_latency_seconds",
			Help:    "Notification delivery latency by outlet",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		}, []string{"outlet"}),
	}
	m.collectorSet = collectorSet{m.MQTTConnected, m.Delivered, m.Errors, m.PublishLatency}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notify metrics: %w", err)
	}
	return m, nil
}

// UpdateConnectionStatus records the MQTT connection state.
func (m *NotifyMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.MQTTConnected.Set(1)
	} else {
		m.MQTTConnected.Set(0)
	}
}

// ObserveDelivery records one delivery attempt.
func (m *NotifyMetrics) ObserveDelivery(outlet string, started time.Time, err error) {
	m.PublishLatency.WithLabelValues(outlet).Observe(time.Since(started).Seconds())
	if err != nil {
		m.Errors.WithLabelValues(outlet).Inc()
		return
	}
	m.Delivered.WithLabelValues(outlet).Inc()
}
