package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// EventBusMetrics tracks detection fan-out to consumers.
type EventBusMetrics struct {
	collectorSet

	Published  prometheus.Counter
	Dropped    prometheus.Counter
	Deliveries *prometheus.CounterVec
	Retries    *prometheus.CounterVec
	QueueDepth prometheus.Gauge
}

// NewEventBusMetrics creates and registers event bus metrics.
func NewEventBusMetrics(registry prometheus.Registerer) (*EventBusMetrics, error) {
	m := &EventBusMetrics{
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearken_eventbus_published_total",
			Help: "Events accepted by the bus",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearken_eventbus_dropped_total",
			Help: "Events dropped because the queue was full",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_eventbus_deliveries_total",
			Help: "Consumer deliveries by outcome",
		}, []string{"consumer", "status"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_eventbus_retries_total",
			Help: "Delivery retries by consumer",
		}, []string{"consumer"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_eventbus_queue_depth",
			Help: "Events waiting for delivery",
		}),
	}
	m.collectorSet = collectorSet{m.Published, m.Dropped, m.Deliveries, m.Retries, m.QueueDepth}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register event bus metrics: %w", err)
	}
	return m, nil
}
