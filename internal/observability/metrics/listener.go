package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ListenerMetrics tracks the capture and analysis path.
type ListenerMetrics struct {
	collectorSet

	FramesTotal       prometheus.Counter
	FramesDropped     *prometheus.CounterVec
	WindowsAnalyzed   prometheus.Counter
	WindowsSkipped    prometheus.Counter
	Detections        *prometheus.CounterVec
	Suppressed        *prometheus.CounterVec
	Corrections       prometheus.Counter
	AnalysisDuration  prometheus.Histogram
	AudioLevel        prometheus.Gauge
	BufferUtilization prometheus.Gauge
	CaptureRunning    prometheus.Gauge
}

// NewListenerMetrics creates and registers listener metrics.
func NewListenerMetrics(registry prometheus.Registerer) (*ListenerMetrics, error) {
	m := &ListenerMetrics{
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearken_listener_frames_total",
			Help: "Audio frames written to the ring buffer",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_listener_frames_dropped_total",
			Help: "Frames dropped before analysis, by reason",
		}, []string{"reason"}),
		WindowsAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearken_listener_windows_analyzed_total",
			Help: "Analysis windows evaluated by the trigger matcher",
		}),
		WindowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearken_listener_windows_skipped_total",
			Help: "Analysis windows skipped because the analyzer was busy",
		}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_listener_detections_total",
			Help: "Emitted detections by trigger",
		}, []string{"trigger"}),
		Suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearken_listener_detections_suppressed_total",
			Help: "Detections suppressed by the cooldown, by trigger",
		}, []string{"trigger"}),
		Corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearken_listener_corrections_total",
			Help: "Decisions replaced by a wider re-evaluation",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hearken_listener_analysis_duration_seconds",
			Help:    "Time taken to classify one window",
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount15),
		}),
		AudioLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_listener_audio_level",
			Help: "Mean absolute level of the latest frame, 0-1",
		}),
		BufferUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_listener_buffer_utilization",
			Help: "Ring buffer fill ratio, 0-1",
		}),
		CaptureRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hearken_listener_capture_running",
			Help: "1 while the capture source is active",
		}),
	}
	m.collectorSet = collectorSet{
		m.FramesTotal, m.FramesDropped, m.WindowsAnalyzed, m.WindowsSkipped,
		m.Detections, m.Suppressed, m.Corrections, m.AnalysisDuration,
		m.AudioLevel, m.BufferUtilization, m.CaptureRunning,
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register listener metrics: %w", err)
	}
	return m, nil
}
