// Package observability exposes hearken's Prometheus metrics.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/hearken/internal/observability/metrics"
)

// Metrics holds all metric collectors, registered in one registry.
type Metrics struct {
	registry  *prometheus.Registry
	Listener  *metrics.ListenerMetrics
	Learning  *metrics.LearningMetrics
	Health    *metrics.HealthMetrics
	Datastore *metrics.DatastoreMetrics
	EventBus  *metrics.EventBusMetrics
	Notify    *metrics.NotifyMetrics
}

// NewMetrics creates a registry with every collector plus the Go runtime
// and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{registry: registry}
	var err error
	if m.Listener, err = metrics.NewListenerMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create listener metrics: %w", err)
	}
	if m.Learning, err = metrics.NewLearningMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create learning metrics: %w", err)
	}
	if m.Health, err = metrics.NewHealthMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create health metrics: %w", err)
	}
	if m.Datastore, err = metrics.NewDatastoreMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}
	if m.EventBus, err = metrics.NewEventBusMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create event bus metrics: %w", err)
	}
	if m.Notify, err = metrics.NewNotifyMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create notify metrics: %w", err)
	}
	return m, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint with mux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}
