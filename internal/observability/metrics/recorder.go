package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the minimal metrics surface components depend on, so they
// can run without a registry in tests.
type Recorder interface {
	// RecordOperation counts an operation outcome, e.g. ("save_state", "success").
	RecordOperation(operation, status string)
	// RecordDuration observes how long an operation took.
	RecordDuration(operation string, seconds float64)
	// RecordError counts a failure by error category.
	RecordError(operation, errorType string)
}

// NoOp discards everything.
type NoOp struct{}

func (NoOp) RecordOperation(string, string) {}
func (NoOp) RecordDuration(string, float64) {}
func (NoOp) RecordError(string, string)     {}

// OrNoOp returns r, or NoOp when r is nil.
func OrNoOp(r Recorder) Recorder {
	if r == nil {
		return NoOp{}
	}
	return r
}

// collectorSet implements prometheus.Collector over its members.
type collectorSet []prometheus.Collector

// Describe implements prometheus.Collector.
func (c collectorSet) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c {
		col.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c collectorSet) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c {
		col.Collect(ch)
	}
}
