package health

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/datastore"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/learning"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/observability/metrics"
)

// Store is the part of the persistence contract the monitor checks and
// repairs.
type Store interface {
	Ping(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Prune(ctx context.Context, limits datastore.RetentionLimits) (datastore.PruneResult, error)
	Counts(ctx context.Context) (datastore.Counts, error)
	AppendPerformanceMetric(ctx context.Context, m *datastore.PerformanceMetric) error
}

// PipelineStatus is a point-in-time view of the capture and learning path.
// Counters are cumulative; the monitor works with deltas between cycles.
type PipelineStatus struct {
	Running           bool
	FramesWritten     uint64
	BufferUtilization float64
	Errors            map[errors.ErrorCategory]uint64
	Flush             learning.FlushStats
	EventsDropped     uint64
	FalsePositiveRate float64
}

// Pipeline is the monitored listener.
type Pipeline interface {
	Status() PipelineStatus
	ResetPipeline(ctx context.Context) error
	RestartCapture(ctx context.Context) error
}

// Config configures a Monitor. Zero values select defaults.
type Config struct {
	Interval          time.Duration // default 120s
	AutoFix           bool
	History           int // reports kept, default 10
	ErrorThreshold    int // extraction and matching errors per cycle, default 10
	CPUThreshold      float64
	MemoryThreshold   float64
	DiskThreshold     float64
	Retention         datastore.RetentionLimits
	Timeout           time.Duration // bound on each store call, default 5s
	ReconnectAttempts int           // default 3
	ReconnectDelay    time.Duration // first backoff, doubled per attempt, default 2s
	Sampler           Sampler       // nil skips resource checks
	Metrics           *metrics.HealthMetrics
	OnReport          func(*Report) // called after every cycle
}

// ConfigFromSettings maps settings to a monitor config.
func ConfigFromSettings(s *conf.Settings) Config {
	h := &s.Health
	return Config{
		Interval:        s.HealthInterval(),
		AutoFix:         h.AutoFix,
		History:         h.History,
		ErrorThreshold:  h.ErrorThreshold,
		CPUThreshold:    h.CPUThreshold,
		MemoryThreshold: h.MemoryThreshold,
		DiskThreshold:   h.DiskThreshold,
		Retention: datastore.RetentionLimits{
			SystemLogs:         h.Retention.SystemLogs,
			PerformanceMetrics: h.Retention.PerformanceMetrics,
			Detections:         h.Retention.Detections,
		},
		Timeout: s.Output.Timeout(),
		Sampler: SystemSampler{DiskPath: h.DiskPath},
	}
}

// baseline holds the cumulative counters seen by the previous cycle.
type baseline struct {
	primed  bool
	frames  uint64
	errors  map[errors.ErrorCategory]uint64
	flush   learning.FlushStats
	dropped uint64
}

// finding is an issue before escalation, with its remediation.
type finding struct {
	key      string
	message  string
	severity Severity
	action   string
}

// Monitor runs health cycles against a pipeline and a store.
type Monitor struct {
	cfg      Config
	store    Store
	pipeline Pipeline
	group    singleflight.Group

	cycleMu sync.Mutex
	base    baseline

	historyMu sync.RWMutex
	history   []*Report
	last      atomic.Pointer[Report]

	remediationAttempts  atomic.Uint64
	remediationSuccesses atomic.Uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor. store may be nil, which skips persistence
// checks.
func NewMonitor(pipeline Pipeline, store Store, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 120 * time.Second
	}
	if cfg.History <= 0 {
		cfg.History = 10
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 3
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	return &Monitor{cfg: cfg, store: store, pipeline: pipeline}
}

// Start runs a cycle every interval until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

// Stop cancels the cadence and waits for a running cycle to finish. It is
// safe to call without Start and more than once.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// LastReport returns the most recent report, or nil before the first cycle.
func (m *Monitor) LastReport() *Report {
	return m.last.Load()
}

// History returns the retained reports, oldest first.
func (m *Monitor) History() []*Report {
	m.historyMu.RLock()
	defer m.historyMu.RUnlock()
	out := make([]*Report, len(m.history))
	copy(out, m.history)
	return out
}

// RunCycle performs one health cycle and returns its report. Failures are
// recorded in the report; the cycle itself never fails.
func (m *Monitor) RunCycle(ctx context.Context) *Report {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	started := time.Now()
	st := m.pipeline.Status()
	report := &Report{
		Time:              started,
		Errors:            make(map[errors.ErrorCategory]uint64),
		BufferUtilization: st.BufferUtilization,
		CaptureRunning:    st.Running,
		StoreReachable:    m.store != nil,
		FlushSuccessRate:  1,
	}

	var found []finding
	found = append(found, m.checkStore(ctx, report)...)
	found = append(found, m.checkCapture(st)...)
	found = append(found, m.checkCounters(st, report)...)
	found = append(found, m.checkRetention(ctx, report)...)
	found = append(found, m.checkResources(ctx, report)...)

	prev := m.last.Load()
	report.Issues = make([]Issue, 0, len(found))
	for _, f := range found {
		consecutive := 1
		if prev != nil {
			if old, ok := prev.Issue(f.key); ok {
				consecutive = old.Consecutive + 1
			}
		}
		report.Issues = append(report.Issues, Issue{
			Key:         f.key,
			Message:     f.message,
			Severity:    f.severity.escalate(consecutive),
			Consecutive: consecutive,
		})
	}

	if m.cfg.AutoFix {
		m.remediate(ctx, found, report)
	}

	m.base = baseline{
		primed:  true,
		frames:  st.FramesWritten,
		errors:  maps.Clone(st.Errors),
		flush:   st.Flush,
		dropped: st.EventsDropped,
	}

	report.Duration = time.Since(started)
	m.recordPerformance(ctx, report, st)
	m.publish(report)
	return report
}

func (m *Monitor) checkStore(ctx context.Context, report *Report) []finding {
	if m.store == nil {
		return nil
	}
	if err := m.withTimeout(ctx, m.store.Ping); err != nil {
		report.StoreReachable = false
		return []finding{{
			key:      IssueStoreUnreachable,
			message:  fmt.Sprintf("persistence store unreachable: %v", err),
			severity: SeverityLow,
			action:   ActionReconnect,
		}}
	}
	return nil
}

func (m *Monitor) checkCapture(st PipelineStatus) []finding {
	if !st.Running {
		return []finding{{
			key:      IssueCaptureStopped,
			message:  "audio capture is not running",
			severity: SeverityHigh,
			action:   ActionRestartCapture,
		}}
	}
	if m.base.primed && st.FramesWritten == m.base.frames {
		return []finding{{
			key:      IssueCaptureStalled,
			message:  fmt.Sprintf("no audio frames written since the last check (%d total)", st.FramesWritten),
			severity: SeverityMedium,
			action:   ActionRestartCapture,
		}}
	}
	return nil
}

// checkCounters turns cumulative counters into per-cycle deltas.
func (m *Monitor) checkCounters(st PipelineStatus, report *Report) []finding {
	var found []finding

	for cat, n := range st.Errors {
		if d := delta(n, m.base.errors[cat]); d > 0 {
			report.Errors[cat] = d
		}
	}
	pipelineErrors := report.Errors[errors.CategoryExtraction] + report.Errors[errors.CategoryMatching]
	if pipelineErrors >= uint64(m.cfg.ErrorThreshold) {
		found = append(found, finding{
			key:      IssueErrorRate,
			message:  fmt.Sprintf("%d extraction and matching errors since the last check", pipelineErrors),
			severity: SeverityMedium,
			action:   ActionResetPipeline,
		})
	}
	if n := report.Errors[errors.CategoryLearningCycle]; n > 0 {
		found = append(found, finding{
			key:      IssueLearningFailing,
			message:  fmt.Sprintf("%d learning cycles failed since the last check", n),
			severity: SeverityLow,
		})
	}

	succeeded := delta(st.Flush.Successes, m.base.flush.Successes)
	failed := delta(st.Flush.Failures, m.base.flush.Failures)
	if total := succeeded + failed; total > 0 {
		report.FlushSuccessRate = float64(succeeded) / float64(total)
	}
	if failed > 0 {
		found = append(found, finding{
			key:      IssueFlushFailing,
			message:  fmt.Sprintf("%d of %d learning state flushes failed", failed, succeeded+failed),
			severity: SeverityLow,
		})
	}

	report.EventsDropped = delta(st.EventsDropped, m.base.dropped)
	if report.EventsDropped > 0 {
		found = append(found, finding{
			key:      IssueEventsDropped,
			message:  fmt.Sprintf("%d detection events dropped by a full queue", report.EventsDropped),
			severity: SeverityLow,
		})
	}
	return found
}

func (m *Monitor) checkRetention(ctx context.Context, report *Report) []finding {
	r := m.cfg.Retention
	if m.store == nil || !report.StoreReachable || (r.SystemLogs == 0 && r.PerformanceMetrics == 0 && r.Detections == 0) {
		return nil
	}
	tctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	counts, err := m.store.Counts(tctx)
	if err != nil {
		GetLogger().Debug("row counts unavailable", logger.Error(err))
		return nil
	}
	over := func(n int64, limit int) bool { return limit > 0 && n > int64(limit) }
	if over(counts.SystemLogs, r.SystemLogs) || over(counts.PerformanceMetrics, r.PerformanceMetrics) || over(counts.Detections, r.Detections) {
		return []finding{{
			key: IssueRetention,
			message: fmt.Sprintf("retention caps exceeded (logs %d/%d, metrics %d/%d, detections %d/%d)",
				counts.SystemLogs, r.SystemLogs, counts.PerformanceMetrics, r.PerformanceMetrics,
				counts.Detections, r.Detections),
			severity: SeverityLow,
			action:   ActionPrune,
		}}
	}
	return nil
}

func (m *Monitor) checkResources(ctx context.Context, report *Report) []finding {
	if m.cfg.Sampler == nil {
		return nil
	}
	res, err := m.cfg.Sampler.Sample(ctx)
	if err != nil {
		GetLogger().Debug("resource sample incomplete", logger.Error(err))
	}
	report.Resources = res

	var found []finding
	if m.cfg.CPUThreshold > 0 && res.CPUPercent > m.cfg.CPUThreshold {
		found = append(found, finding{
			key:      IssueCPU,
			message:  fmt.Sprintf("CPU usage %.1f%% above %.1f%%", res.CPUPercent, m.cfg.CPUThreshold),
			severity: SeverityMedium,
		})
	}
	if m.cfg.MemoryThreshold > 0 && res.MemoryPercent > m.cfg.MemoryThreshold {
		found = append(found, finding{
			key:      IssueMemory,
			message:  fmt.Sprintf("memory usage %.1f%% above %.1f%%", res.MemoryPercent, m.cfg.MemoryThreshold),
			severity: SeverityMedium,
		})
	}
	if m.cfg.DiskThreshold > 0 && res.DiskPercent > m.cfg.DiskThreshold {
		found = append(found, finding{
			key:      IssueDisk,
			message:  fmt.Sprintf("disk usage %.1f%% above %.1f%%", res.DiskPercent, m.cfg.DiskThreshold),
			severity: SeverityHigh,
			action:   ActionPrune,
		})
	}
	return found
}

// remediate runs each distinct action once. A failed action marks every
// issue bound to it unresolved.
func (m *Monitor) remediate(ctx context.Context, found []finding, report *Report) {
	results := make(map[string]error)
	for i, f := range found {
		if f.action == "" {
			continue
		}
		err, ran := results[f.action]
		if !ran {
			started := time.Now()
			err = m.Remediate(ctx, f.action)
			results[f.action] = err
			action := Action{Name: f.action, Issue: f.key, Success: err == nil, Duration: time.Since(started)}
			if err != nil {
				action.Error = err.Error()
				report.Errors[errors.CategoryRemediation]++
				GetLogger().Error("remediation failed",
					logger.String("action", f.action),
					logger.String("issue", f.key),
					logger.Error(err))
			} else {
				GetLogger().Info("remediation succeeded",
					logger.String("action", f.action),
					logger.String("issue", f.key))
			}
			report.Actions = append(report.Actions, action)
		}
		report.Issues[i].Unresolved = err != nil
	}
}

// recordPerformance appends the cycle's performance row when the store is
// reachable or was reconnected.
func (m *Monitor) recordPerformance(ctx context.Context, report *Report, st PipelineStatus) {
	if m.store == nil {
		return
	}
	if !report.StoreReachable && !reconnected(report) {
		return
	}
	row := &datastore.PerformanceMetric{
		RecordedAt:        report.Time,
		ProcessingMs:      float64(report.Duration.Microseconds()) / 1000,
		CPUPercent:        report.Resources.CPUPercent,
		MemoryPercent:     report.Resources.MemoryPercent,
		DiskPercent:       report.Resources.DiskPercent,
		BufferUtilization: report.BufferUtilization,
		FalsePositiveRate: st.FalsePositiveRate,
		SelfFixRate:       m.SelfFixRate(),
	}
	err := m.withTimeout(ctx, func(ctx context.Context) error {
		return m.store.AppendPerformanceMetric(ctx, row)
	})
	if err != nil {
		GetLogger().Debug("performance metric not recorded", logger.Error(err))
	}
}

func reconnected(report *Report) bool {
	for _, a := range report.Actions {
		if a.Name == ActionReconnect && a.Success {
			return true
		}
	}
	return false
}

func (m *Monitor) publish(report *Report) {
	m.historyMu.Lock()
	m.history = append(m.history, report)
	if over := len(m.history) - m.cfg.History; over > 0 {
		m.history = append(m.history[:0:0], m.history[over:]...)
	}
	m.historyMu.Unlock()
	m.last.Store(report)
	if m.cfg.OnReport != nil {
		m.cfg.OnReport(report)
	}

	if mt := m.cfg.Metrics; mt != nil {
		mt.Checks.Inc()
		mt.CheckDuration.Observe(report.Duration.Seconds())
		mt.Issues.Reset()
		for _, is := range report.Issues {
			mt.Issues.WithLabelValues(is.Severity.String()).Inc()
		}
		mt.CPUPercent.Set(report.Resources.CPUPercent)
		mt.MemoryPercent.Set(report.Resources.MemoryPercent)
		mt.DiskPercent.Set(report.Resources.DiskPercent)
	}

	log := GetLogger()
	if report.Healthy() {
		log.Debug("health check passed",
			logger.Float64("buffer_utilization", report.BufferUtilization),
			logger.Duration("duration", report.Duration))
		return
	}
	for _, is := range report.Issues {
		log.Warn("health issue",
			logger.String("issue", is.Key),
			logger.String("severity", is.Severity.String()),
			logger.Int("consecutive", is.Consecutive),
			logger.Bool("unresolved", is.Unresolved),
			logger.String("detail", is.Message))
	}
}

// delta returns cur-prev, or cur when the counter was reset.
func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return cur
	}
	return cur - prev
}
