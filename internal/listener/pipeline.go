package listener

import (
	"context"
	"fmt"

	"github.com/tphakala/hearken/internal/datastore"
	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/health"
	"github.com/tphakala/hearken/internal/logger"
)

// Status implements health.Pipeline.
func (l *Listener) Status() health.PipelineStatus {
	return health.PipelineStatus{
		Running:           l.CaptureRunning(),
		FramesWritten:     l.ring.FramesWritten(),
		BufferUtilization: l.ring.Utilization(),
		Errors:            l.ErrorCounts(),
		Flush:             l.learning.FlushStats(),
		EventsDropped:     l.bus.Stats().Dropped + l.loop.Stats().Dropped,
		FalsePositiveRate: l.learning.Summary().FalsePositiveRate,
	}
}

// ResetPipeline clears buffered audio, pending windows and per-stream
// analysis state. The capture goroutine resets the frame assembler before
// the next chunk.
func (l *Listener) ResetPipeline(_ context.Context) error {
	l.resetRequested.Store(true)
	l.drainWindows()
	l.ring.Reset()
	l.features.reset(framesFor(int(l.bufferSeconds.Load()), l.frameMillis))
	l.extractor.Reset()
	l.matcher.ResetHistory()
	GetLogger().Info("analysis pipeline reset")
	return nil
}

// drainWindows discards analysis windows cut before a reset.
func (l *Listener) drainWindows() {
	for {
		select {
		case <-l.windows:
		default:
			return
		}
	}
}

// RestartCapture stops and restarts the audio source.
func (l *Listener) RestartCapture(_ context.Context) error {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if l.state != stateRunning {
		return errors.Newf("listener is not running").
			Component("listener").
			Category(errors.CategoryState).
			Build()
	}

	if err := l.source.Stop(); err != nil {
		GetLogger().Debug("audio source stop before restart failed", logger.Error(err))
	}
	l.setCaptureRunning(false)
	if err := l.source.Start(l.runCtx); err != nil {
		l.countError(errors.CategoryDevice)
		return deviceError(err, "restart", l.source.Name())
	}
	l.resetRequested.Store(true)
	l.setCaptureRunning(true)
	GetLogger().Info("audio capture restarted", logger.String("source", l.source.Name()))
	return nil
}

// logDetection is the bus consumer writing one system log entry per
// detection, subject to the system log rate.
func (l *Listener) logDetection(ctx context.Context, e *detection.Event) error {
	return l.syslog.Write(ctx, datastore.LevelInfo, datastore.CategoryDetection,
		fmt.Sprintf("detected %s", e.Trigger), map[string]any{
			"event_id":   e.ID.String(),
			"confidence": e.Confidence,
			"activity":   string(e.Activity),
			"corrected":  e.Corrected,
		})
}

func (l *Listener) onDeliveryFailure(consumer string, e *detection.Event, err error) {
	category := errors.CategoryOf(err)
	if category == errors.CategoryGeneric {
		category = errors.CategoryNotification
		if consumer == "persistence" || consumer == "syslog" {
			category = errors.CategoryPersistence
		}
	}
	l.countError(category)
	GetLogger().Warn("detection delivery failed",
		logger.String("consumer", consumer),
		logger.String("trigger", e.Trigger),
		logger.Error(err))
}

// onHealthReport stores unhealthy reports and remediation outcomes in the
// system log while the store is reachable.
func (l *Listener) onHealthReport(r *health.Report) {
	if r.Healthy() || !storeUsable(r) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.settings.Output.Timeout())
	defer cancel()

	worst, _ := r.MaxSeverity()
	level := datastore.LevelWarning
	if worst >= health.SeverityHigh {
		level = datastore.LevelError
	}
	issues := make(map[string]any, len(r.Issues))
	for _, is := range r.Issues {
		issues[is.Key] = is.Severity.String()
	}
	_ = l.syslog.Write(ctx, level, datastore.CategoryHealth,
		fmt.Sprintf("%d health issues, worst %s", len(r.Issues), worst), map[string]any{
			"issues":             issues,
			"buffer_utilization": r.BufferUtilization,
			"capture_running":    r.CaptureRunning,
		})

	for _, a := range r.Actions {
		lvl := datastore.LevelInfo
		if !a.Success {
			lvl = datastore.LevelWarning
		}
		_ = l.syslog.Write(ctx, lvl, datastore.CategoryRemediation, a.Name, map[string]any{
			"issue":    a.Issue,
			"success":  a.Success,
			"error":    a.Error,
			"duration": a.Duration.String(),
		})
	}
}

func storeUsable(r *health.Report) bool {
	if r.StoreReachable {
		return true
	}
	for _, a := range r.Actions {
		if a.Name == health.ActionReconnect && a.Success {
			return true
		}
	}
	return false
}
