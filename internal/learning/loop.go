package learning

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/observability/metrics"
	"github.com/tphakala/hearken/internal/trigger"
)

// History gives the loop the persisted detections, newest first.
type History interface {
	QueryRecentDetections(ctx context.Context, limit int) ([]detection.Record, error)
}

// Session describes one completed learning cycle.
type Session struct {
	Start            time.Time
	End              time.Time
	Processed        int     // observations folded into patterns
	PatternsLearned  int     // patterns that did not exist before the cycle
	ImprovementScore float64 // drop in the false-positive estimate
}

// SessionRecorder persists learning sessions.
type SessionRecorder interface {
	AppendLearningSession(ctx context.Context, s Session) error
}

// LoopConfig configures a Loop. Zero values select defaults.
type LoopConfig struct {
	Interval    time.Duration // default 300s
	RecentLimit int           // persisted records reviewed per cycle, default 100
	InboxSize   int           // default 256
	MaxPending  int           // drained events kept across failed cycles, default 4×InboxSize
	Timeout     time.Duration // bound on each persistence call, default 5s
	Metrics     *metrics.LearningMetrics
}

// CycleResult reports what a cycle did.
type CycleResult struct {
	Session
	Reviewed int   // distinct events considered
	Version  uint64
	FlushErr error // non-fatal
}

// LoopStats is a status view of the loop.
type LoopStats struct {
	Cycles              uint64
	Failures            uint64
	ConsecutiveFailures uint64
	Dropped             uint64
	Pending             int
	LastCycle           time.Time
}

// Loop periodically folds new detections into the store. It is the store's
// only writer while running.
type Loop struct {
	store    *Store
	history  History
	sessions SessionRecorder
	cfg      LoopConfig
	inbox    chan detection.Observation

	cycleMu sync.Mutex
	pending []detection.Observation
	replay  []detection.Observation // applied before the persisted state was loaded

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	cycles      atomic.Uint64
	failures    atomic.Uint64
	consecutive atomic.Uint64
	dropped     atomic.Uint64
	pendingLen  atomic.Int64
	lastCycle   atomic.Int64
}

// NewLoop creates a loop. sessions may be nil.
func NewLoop(store *Store, history History, sessions SessionRecorder, cfg LoopConfig) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 300 * time.Second
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 100
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 4 * cfg.InboxSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Loop{
		store:    store,
		history:  history,
		sessions: sessions,
		cfg:      cfg,
		inbox:    make(chan detection.Observation, cfg.InboxSize),
	}
}

// Offer queues a fresh detection without blocking. It returns false and
// counts a drop when the inbox is full.
func (l *Loop) Offer(obs detection.Observation) bool {
	select {
	case l.inbox <- obs:
		return true
	default:
		l.dropped.Add(1)
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.InboxDropped.Inc()
		}
		return false
	}
}

// Start runs cycles every interval until Stop or ctx cancellation.
// Calling Start on a running loop does nothing.
func (l *Loop) Start(ctx context.Context) {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

// Stop cancels the cadence, waits for it and makes a last flush attempt.
// It is safe to call without Start and more than once.
func (l *Loop) Stop() {
	l.runMu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	if err := l.store.Flush(context.Background()); err != nil {
		GetLogger().Warn("final learning flush failed", logger.Error(err))
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	log := GetLogger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := l.RunCycle(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("learning cycle failed",
					logger.Error(err),
					logger.Int("pending", len(l.pendingSnapshot())))
				continue
			}
			log.Info("learning cycle completed",
				logger.Int("reviewed", res.Reviewed),
				logger.Int("processed", res.Processed),
				logger.Int("patterns_learned", res.PatternsLearned),
				logger.Uint64("version", res.Version),
				logger.Duration("duration", res.End.Sub(res.Start)))
		}
	}
}

// RunCycle performs one learning cycle. On error nothing is committed and
// drained events are kept for the next cycle. Re-running a cycle over the
// same events changes nothing.
func (l *Loop) RunCycle(ctx context.Context) (CycleResult, error) {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	res := CycleResult{Session: Session{Start: time.Now()}}
	l.drainInbox()
	l.ensureLoaded(ctx)

	qctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	records, err := l.history.QueryRecentDetections(qctx, l.cfg.RecentLimit)
	cancel()
	if err != nil {
		return res, l.fail(res.Start, cycleError(err, "query_recent"))
	}

	observations := merge(slices.Concat(l.replay, l.pending), records)
	res.Reviewed = len(observations)
	before := l.store.Snapshot()

	var fresh []detection.Observation
	err = l.store.Update(func(tx *Txn) error {
		wm := tx.Watermark()
		seen := wm.seen()

		fresh = fresh[:0]
		for i := range observations {
			if observations[i].After(wm.At, seen) {
				fresh = append(fresh, observations[i])
			}
		}
		slices.SortFunc(fresh, compareObservations)

		for i := range fresh {
			if err := ctx.Err(); err != nil {
				return err
			}
			obs := &fresh[i]
			if obs.FalsePositive {
				continue
			}
			tx.ApplyObservation(obs.Trigger, obs.Confidence, obs.Timestamp)
			if obs.Transcript != "" && !trigger.IsActivityDescription(obs.Transcript) {
				tx.AppendCorpus(obs.Transcript)
			}
			res.Processed++
		}

		if len(fresh) > 0 {
			tx.RecomputeCommonWords()
			last := fresh[len(fresh)-1].Timestamp
			var ids []string
			for i := range fresh {
				if fresh[i].Timestamp.Equal(last) {
					ids = append(ids, fresh[i].EventID)
				}
			}
			tx.AdvanceWatermark(last, ids)
		}

		stats, flagged := triggerStats(observations)
		tx.SetTriggerStats(stats, len(observations))
		rate := 0.0
		if len(observations) > 0 {
			rate = float64(flagged) / float64(len(observations))
		}
		tx.SetFalsePositiveRate(rate)
		return nil
	})
	if err != nil {
		return res, l.fail(res.Start, cycleError(err, "update"))
	}

	l.pending = l.pending[:0]
	l.pendingLen.Store(0)
	l.trackReplay(fresh)

	after := l.store.Snapshot()
	res.Version = after.Version
	for name := range after.Patterns {
		if _, ok := before.Patterns[name]; !ok {
			res.PatternsLearned++
		}
	}
	res.ImprovementScore = before.FalsePositiveRate - after.FalsePositiveRate

	if err := l.store.Flush(ctx); err != nil {
		res.FlushErr = err
		GetLogger().Warn("learning state flush failed, keeping memory copy", logger.Error(err))
		l.observeFlush(metrics.StatusError)
	} else {
		l.observeFlush(metrics.StatusSuccess)
	}

	res.End = time.Now()
	if l.sessions != nil && res.Processed > 0 {
		sctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
		if err := l.sessions.AppendLearningSession(sctx, res.Session); err != nil {
			GetLogger().Warn("failed to record learning session", logger.Error(err))
		}
		cancel()
	}

	l.cycles.Add(1)
	l.consecutive.Store(0)
	l.lastCycle.Store(res.End.UnixNano())
	if m := l.cfg.Metrics; m != nil {
		m.Cycles.WithLabelValues(metrics.StatusSuccess).Inc()
		m.CycleDuration.Observe(res.End.Sub(res.Start).Seconds())
		m.Observations.Add(float64(res.Processed))
		m.Patterns.Set(float64(len(after.Patterns)))
		m.FalsePositiveRate.Set(after.FalsePositiveRate)
		m.Version.Set(float64(after.Version))
	}
	return res, nil
}

// Stats returns the loop counters.
func (l *Loop) Stats() LoopStats {
	s := LoopStats{
		Cycles:              l.cycles.Load(),
		Failures:            l.failures.Load(),
		ConsecutiveFailures: l.consecutive.Load(),
		Dropped:             l.dropped.Load(),
		Pending:             int(l.pendingLen.Load()) + len(l.inbox),
	}
	if ns := l.lastCycle.Load(); ns > 0 {
		s.LastCycle = time.Unix(0, ns)
	}
	return s
}

// ensureLoaded retries reading the persisted state after a boot-time
// outage. Until it succeeds cycles keep working in memory and the
// observations they apply are kept for replay over the loaded state.
// Caller holds cycleMu.
func (l *Loop) ensureLoaded(ctx context.Context) {
	if l.store.Loaded() {
		return
	}
	if err := l.store.Load(ctx); err != nil {
		GetLogger().Debug("learning state still unavailable", logger.Error(err))
		return
	}
	GetLogger().Info("learning state loaded after outage",
		logger.Int("replay", len(l.replay)))
}

// trackReplay keeps applied observations while the store is not loaded,
// bounded by MaxPending, and releases them once it is. Caller holds cycleMu.
func (l *Loop) trackReplay(fresh []detection.Observation) {
	if l.store.Loaded() {
		l.replay = nil
		return
	}
	l.replay = append(l.replay, fresh...)
	if over := len(l.replay) - l.cfg.MaxPending; over > 0 {
		l.replay = slices.Delete(l.replay, 0, over)
	}
}

// drainInbox moves queued events to pending, dropping the oldest beyond
// MaxPending. Caller holds cycleMu.
func (l *Loop) drainInbox() {
	for {
		select {
		case obs := <-l.inbox:
			l.pending = append(l.pending, obs)
		default:
			if over := len(l.pending) - l.cfg.MaxPending; over > 0 {
				l.pending = slices.Delete(l.pending, 0, over)
				l.dropped.Add(uint64(over))
			}
			l.pendingLen.Store(int64(len(l.pending)))
			return
		}
	}
}

func (l *Loop) pendingSnapshot() []detection.Observation {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()
	return slices.Clone(l.pending)
}

func (l *Loop) fail(start time.Time, err error) error {
	l.failures.Add(1)
	l.consecutive.Add(1)
	if m := l.cfg.Metrics; m != nil {
		m.Cycles.WithLabelValues(metrics.StatusError).Inc()
		m.CycleDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

func (l *Loop) observeFlush(status string) {
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.Flushes.WithLabelValues(status).Inc()
	}
}

func cycleError(err error, stage string) error {
	return errors.New(err).
		Component("learning").
		Category(errors.CategoryLearningCycle).
		Context("stage", stage).
		Build()
}

// merge dedupes live and persisted observations by event ID. The
// persisted copy wins since it carries the false-positive flag.
func merge(pending []detection.Observation, records []detection.Record) []detection.Observation {
	byID := make(map[string]detection.Observation, len(pending)+len(records))
	for _, o := range pending {
		byID[o.EventID] = o
	}
	for i := range records {
		byID[records[i].EventID] = records[i].Observation()
	}
	out := make([]detection.Observation, 0, len(byID))
	for _, o := range byID {
		out = append(out, o)
	}
	slices.SortFunc(out, compareObservations)
	return out
}

func compareObservations(a, b detection.Observation) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.EventID, b.EventID)
}

// triggerStats summarizes observations per trigger and counts the flagged
// ones.
func triggerStats(observations []detection.Observation) (map[string]TriggerStats, int) {
	stats := make(map[string]TriggerStats)
	flagged := 0
	for i := range observations {
		o := &observations[i]
		name := normalize(o.Trigger)
		s := stats[name]
		s.Count++
		s.AvgConfidence += (o.Confidence - s.AvgConfidence) / float64(s.Count)
		if o.Timestamp.After(s.LastSeen) {
			s.LastSeen = o.Timestamp
		}
		if o.FalsePositive {
			s.FalsePositives++
			flagged++
		}
		stats[name] = s
	}
	return stats, flagged
}
