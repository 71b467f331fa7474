package listener

import (
	"context"
	"math"
	"time"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/trigger"
)

// captureLoop moves device chunks into the ring buffer. It never performs
// I/O and never waits on the analysis goroutine.
func (l *Listener) captureLoop(ctx context.Context) {
	defer l.wg.Done()
	log := GetLogger().Module("capture")

	out := l.source.Output()
	errs := l.source.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-out:
			if !ok {
				log.Warn("audio source closed its output")
				l.setCaptureRunning(false)
				out = nil
				continue
			}
			if l.resetRequested.CompareAndSwap(true, false) {
				l.assembler.Reset()
				l.sinceHop = 0
			}
			l.assembler.Push(chunk, time.Now(), l.onFrame)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			l.countError(errors.CategoryDevice)
			log.Warn("audio source error", logger.Error(err))
		}
	}
}

// onFrame extracts features, buffers the frame and cuts an analysis window
// every hop.
func (l *Listener) onFrame(frame *audiocore.AudioFrame) {
	m := l.listenerMetrics()

	fs, err := l.extractor.Extract(frame)
	if err != nil {
		l.countError(errors.CategoryExtraction)
		if m != nil {
			m.FramesDropped.WithLabelValues("extraction").Inc()
		}
		GetLogger().Debug("frame dropped", logger.Uint64("seq", frame.Seq), logger.Error(err))
		return
	}

	l.ring.Write(frame)
	l.features.add(frame.Seq, fs)
	l.level.Store(math.Float64bits(fs.Level))
	if m != nil {
		m.FramesTotal.Inc()
		m.AudioLevel.Set(fs.Level)
		m.BufferUtilization.Set(l.ring.Utilization())
	}

	l.sinceHop++
	if l.sinceHop < l.hopFrames {
		return
	}
	l.sinceHop = 0

	snap := l.ring.Snapshot(l.windowSeconds)
	if snap.Empty() {
		return
	}
	w := trigger.NewWindow(&snap, l.features.span(snap.FirstSeq, snap.LastSeq))
	select {
	case l.windows <- w:
	default:
		l.skipped.Add(1)
		if m != nil {
			m.WindowsSkipped.Inc()
		}
	}
}

// widen re-cuts w at factor times its length, ending at the newest buffered
// frame. It reports false when the buffer holds no more audio than w.
func (l *Listener) widen(_ context.Context, w *trigger.Window, factor float64) (*trigger.Window, bool) {
	if w.SampleRate <= 0 || factor <= 1 {
		return nil, false
	}
	seconds := float64(len(w.Samples)) * factor / float64(w.SampleRate)
	snap := l.ring.Snapshot(seconds)
	if len(snap.Samples) <= len(w.Samples) {
		return nil, false
	}
	return trigger.NewWindow(&snap, l.features.span(snap.FirstSeq, snap.LastSeq)), true
}
