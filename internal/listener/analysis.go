package listener

import (
	"context"
	"time"

	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/trigger"
)

func (l *Listener) analysisLoop(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-l.windows:
			l.analyze(ctx, w)
		}
	}
}

// analyze runs the matcher over one window and emits a detection when it
// fires outside the trigger's cooldown.
func (l *Listener) analyze(ctx context.Context, w *trigger.Window) *detection.Event {
	m := l.listenerMetrics()

	start := time.Now()
	d, err := l.matcher.Process(ctx, w, l.learning.Snapshot())
	if m != nil {
		m.WindowsAnalyzed.Inc()
		m.AnalysisDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		l.countError(errors.CategoryMatching)
		GetLogger().Debug("window analysis failed",
			logger.Uint64("first_seq", w.FirstSeq),
			logger.Error(err))
		return nil
	}
	if d.Corrected && m != nil {
		m.Corrections.Inc()
	}
	if !d.Fired {
		return nil
	}

	if l.cooldown != nil {
		if _, found := l.cooldown.Get(d.Trigger); found {
			if m != nil {
				m.Suppressed.WithLabelValues(d.Trigger).Inc()
			}
			return nil
		}
		l.cooldown.SetDefault(d.Trigger, start)
	}

	audio := l.ring.Snapshot(float64(l.settings.Buffer.SnapshotSeconds))
	ev := detection.NewEvent(&d, w.Summary, audio, w.End())
	l.detections.Add(1)
	if m != nil {
		m.Detections.WithLabelValues(d.Trigger).Inc()
	}

	l.loop.Offer(ev.Observation())
	l.bus.TryPublish(ev)

	GetLogger().Info("trigger detected",
		logger.String("trigger", ev.Trigger),
		logger.Float64("confidence", ev.Confidence),
		logger.Float64("raw_confidence", ev.RawConfidence),
		logger.String("activity", string(ev.Activity)),
		logger.Bool("corrected", ev.Corrected))
	return ev
}
