// Package metrics defines the Prometheus collectors of each hearken
// component.
package metrics

import "time"

// Operation names recorded through Recorder.
const (
	OpLoadState     = "load_state"
	OpSaveState     = "save_state"
	OpAppendDetect  = "append_detection"
	OpQueryRecent   = "query_recent"
	OpAppendLog     = "append_log"
	OpAppendSession = "append_session"
	OpAppendMetric  = "append_metric"
	OpMarkFalsePos  = "mark_false_positive"
	OpPing          = "ping"
	OpReconnect     = "reconnect"
	OpPrune         = "prune"
	OpCounts        = "counts"
	OpMigrate       = "migrate"
	OpCapture       = "capture"
	OpExtract       = "extract"
	OpClassify      = "classify"
	OpLearningCycle = "learning_cycle"
	OpLearningFlush = "learning_flush"
	OpHealthCheck   = "health_check"
	OpRemediation   = "remediation"
	OpNotifyMQTT    = "notify_mqtt"
	OpNotifyPush    = "notify_push"
	OpBusDelivery   = "bus_delivery"
	OpBusPublish    = "bus_publish"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
	StatusDropped = "dropped"
)

// Histogram bucket configuration.
const (
	BucketStart100us = 0.0001
	BucketStart1ms   = 0.001
	BucketStart10ms  = 0.01
	BucketFactor2    = 2
	BucketCount12    = 12
	BucketCount15    = 15
)

// ShutdownTimeout bounds the metrics server shutdown.
const ShutdownTimeout = 5 * time.Second
