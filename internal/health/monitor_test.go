package health

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/datastore"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/observability/metrics"
)

// ringPipeline reports a real ring buffer as a running pipeline.
type ringPipeline struct {
	rb *audiocore.RingBuffer
}

func (p ringPipeline) Status() PipelineStatus {
	return PipelineStatus{
		Running:           true,
		FramesWritten:     p.rb.FramesWritten(),
		BufferUtilization: p.rb.Utilization(),
	}
}

func (p ringPipeline) ResetPipeline(context.Context) error  { return nil }
func (p ringPipeline) RestartCapture(context.Context) error { return nil }

func TestSilenceReportsFullBufferAndNoIssues(t *testing.T) {
	t.Parallel()

	const rate, frame = 16000, 1600
	rb, err := audiocore.NewRingBuffer(30, rate, frame)
	require.NoError(t, err)

	write := func(from, n uint64) {
		for seq := from; seq < from+n; seq++ {
			rb.Write(&audiocore.AudioFrame{
				Seq:        seq,
				Timestamp:  time.Unix(int64(seq)/10, 0),
				SampleRate: rate,
				Samples:    make([]float32, frame),
			})
		}
	}

	store := &fakeStore{}
	m := NewMonitor(ringPipeline{rb: rb}, store, testConfig())

	write(1, 450) // 45 s of silence
	snap := rb.Snapshot(30)
	assert.Len(t, snap.Samples, 30*rate)

	report := m.RunCycle(context.Background())
	assert.True(t, report.Healthy(), "issues: %+v", report.Issues)
	assert.InDelta(t, 1.0, report.BufferUtilization, 1e-9)
	assert.True(t, report.StoreReachable)
	assert.Empty(t, report.Actions)

	write(451, 10)
	report = m.RunCycle(context.Background())
	assert.True(t, report.Healthy(), "issues: %+v", report.Issues)
	assert.Len(t, store.calls().rows, 2)
}

func TestUnreachableStoreEscalates(t *testing.T) {
	t.Parallel()

	down := stderrors.New("dial tcp: connection refused")
	store := &fakeStore{pingErr: down, reconnectErr: down}
	pipe := newFakePipeline()
	m := NewMonitor(pipe, store, testConfig())

	want := []Severity{SeverityLow, SeverityMedium, SeverityHigh}
	for cycle, severity := range want {
		pipe.advance(100)
		pipe.update(func(st *PipelineStatus) { st.Flush.Failures++ })

		report := m.RunCycle(context.Background())
		assert.False(t, report.StoreReachable)

		is, ok := report.Issue(IssueStoreUnreachable)
		require.True(t, ok, "cycle %d", cycle+1)
		assert.Equal(t, severity, is.Severity, "cycle %d", cycle+1)
		assert.Equal(t, cycle+1, is.Consecutive)
		assert.True(t, is.Unresolved)

		flush, ok := report.Issue(IssueFlushFailing)
		require.True(t, ok)
		assert.Equal(t, severity, flush.Severity)
		assert.InDelta(t, 0, report.FlushSuccessRate, 1e-9)

		require.Len(t, report.Actions, 1)
		assert.Equal(t, ActionReconnect, report.Actions[0].Name)
		assert.False(t, report.Actions[0].Success)
		assert.Equal(t, uint64(1), report.Errors[errors.CategoryRemediation])
	}

	calls := store.calls()
	assert.Equal(t, 9, calls.reconnects, "three attempts per cycle")
	assert.Empty(t, calls.rows, "no performance rows while unreachable")
	assert.InDelta(t, 0, m.SelfFixRate(), 1e-9)

	// the broker comes back: the reconnect remediation succeeds
	store.set(func(s *fakeStore) { s.reconnectErr = nil })
	pipe.advance(100)
	report := m.RunCycle(context.Background())
	is, ok := report.Issue(IssueStoreUnreachable)
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, is.Severity)
	assert.False(t, is.Unresolved)
	assert.True(t, report.Actions[0].Success)
	assert.Len(t, store.calls().rows, 1)
	assert.InDelta(t, 0.25, m.SelfFixRate(), 1e-9)

	pipe.advance(100)
	report = m.RunCycle(context.Background())
	assert.True(t, report.Healthy(), "issues: %+v", report.Issues)
	assert.True(t, report.StoreReachable)
}

func TestCaptureChecks(t *testing.T) {
	t.Parallel()

	pipe := newFakePipeline()
	m := NewMonitor(pipe, &fakeStore{}, testConfig())

	pipe.advance(10)
	require.True(t, m.RunCycle(context.Background()).Healthy())

	// no frames since the last cycle
	report := m.RunCycle(context.Background())
	is, ok := report.Issue(IssueCaptureStalled)
	require.True(t, ok)
	assert.Equal(t, SeverityMedium, is.Severity)
	assert.Equal(t, 1, pipe.restarts)

	pipe.update(func(st *PipelineStatus) {
		st.Running = false
		st.FramesWritten += 10
	})
	report = m.RunCycle(context.Background())
	is, ok = report.Issue(IssueCaptureStopped)
	require.True(t, ok)
	assert.Equal(t, SeverityHigh, is.Severity)
	assert.Equal(t, 2, pipe.restarts)
	_, stalled := report.Issue(IssueCaptureStalled)
	assert.False(t, stalled)
}

func TestErrorDeltasResetPipeline(t *testing.T) {
	t.Parallel()

	pipe := newFakePipeline()
	cfg := testConfig()
	cfg.ErrorThreshold = 5
	m := NewMonitor(pipe, &fakeStore{}, cfg)

	pipe.update(func(st *PipelineStatus) {
		st.FramesWritten = 10
		st.Errors[errors.CategoryExtraction] = 3
		st.Errors[errors.CategoryMatching] = 3
		st.Errors[errors.CategoryLearningCycle] = 1
	})
	report := m.RunCycle(context.Background())
	assert.Equal(t, uint64(3), report.Errors[errors.CategoryExtraction])
	_, ok := report.Issue(IssueErrorRate)
	assert.True(t, ok)
	_, ok = report.Issue(IssueLearningFailing)
	assert.True(t, ok)
	assert.Equal(t, 1, pipe.resets)

	// unchanged cumulative counters mean no new errors
	pipe.advance(10)
	report = m.RunCycle(context.Background())
	assert.True(t, report.Healthy(), "issues: %+v", report.Issues)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, pipe.resets)
}

func TestFailedRemediationMarksIssueUnresolved(t *testing.T) {
	t.Parallel()

	pipe := newFakePipeline()
	pipe.resetErr = stderrors.New("extractor busy")
	cfg := testConfig()
	cfg.ErrorThreshold = 1
	m := NewMonitor(pipe, &fakeStore{}, cfg)

	pipe.update(func(st *PipelineStatus) {
		st.FramesWritten = 10
		st.Errors[errors.CategoryExtraction] = 4
	})
	report := m.RunCycle(context.Background())
	is, ok := report.Issue(IssueErrorRate)
	require.True(t, ok)
	assert.True(t, is.Unresolved)
	require.Len(t, report.Actions, 1)
	assert.Contains(t, report.Actions[0].Error, "extractor busy")
	assert.Equal(t, uint64(1), report.Errors[errors.CategoryRemediation])
}

func TestDropsAndRetention(t *testing.T) {
	t.Parallel()

	store := &fakeStore{counts: datastore.Counts{SystemLogs: 1200, PerformanceMetrics: 100}}
	pipe := newFakePipeline()
	cfg := testConfig()
	cfg.Retention = datastore.RetentionLimits{SystemLogs: 1000, PerformanceMetrics: 500}
	m := NewMonitor(pipe, store, cfg)

	pipe.update(func(st *PipelineStatus) {
		st.FramesWritten = 10
		st.EventsDropped = 7
	})
	report := m.RunCycle(context.Background())
	assert.Equal(t, uint64(7), report.EventsDropped)
	_, ok := report.Issue(IssueEventsDropped)
	assert.True(t, ok)
	_, ok = report.Issue(IssueRetention)
	assert.True(t, ok)

	calls := store.calls()
	assert.Equal(t, 1, calls.prunes)
	assert.Equal(t, int64(1000), calls.counts.SystemLogs)

	pipe.advance(10)
	report = m.RunCycle(context.Background())
	assert.True(t, report.Healthy(), "issues: %+v", report.Issues)
}

func TestResourceThresholds(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	pipe := newFakePipeline()
	cfg := testConfig()
	cfg.Sampler = fakeSampler{res: Resources{CPUPercent: 97, MemoryPercent: 30, DiskPercent: 98}}
	m := NewMonitor(pipe, store, cfg)

	pipe.advance(10)
	report := m.RunCycle(context.Background())
	_, cpu := report.Issue(IssueCPU)
	_, mem := report.Issue(IssueMemory)
	disk, diskOK := report.Issue(IssueDisk)
	assert.True(t, cpu)
	assert.False(t, mem)
	require.True(t, diskOK)
	assert.Equal(t, SeverityHigh, disk.Severity)
	assert.Equal(t, 1, store.calls().prunes)

	rows := store.calls().rows
	require.Len(t, rows, 1)
	assert.InDelta(t, 97, rows[0].CPUPercent, 1e-9)
	assert.InDelta(t, 1, rows[0].SelfFixRate, 1e-9)
}

func TestAutoFixDisabled(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pingErr: stderrors.New("down")}
	pipe := newFakePipeline()
	cfg := testConfig()
	cfg.AutoFix = false
	m := NewMonitor(pipe, store, cfg)

	pipe.advance(10)
	report := m.RunCycle(context.Background())
	_, ok := report.Issue(IssueStoreUnreachable)
	assert.True(t, ok)
	assert.Empty(t, report.Actions)
	assert.Zero(t, store.calls().reconnects)
}

func TestRemediateSharesConcurrentRuns(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	entered := make(chan struct{})
	store := &fakeStore{reconnectGate: gate, reconnectEntered: entered}
	m := NewMonitor(newFakePipeline(), store, testConfig())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = m.Remediate(context.Background(), ActionReconnect)
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = m.Remediate(context.Background(), ActionReconnect)
	}()
	time.Sleep(50 * time.Millisecond) //nolint:gocritic // second caller joins the in-flight reconnect
	close(gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, store.calls().reconnects)
}

func TestRemediateUnknownAction(t *testing.T) {
	t.Parallel()

	m := NewMonitor(newFakePipeline(), nil, testConfig())
	err := m.Remediate(context.Background(), "reboot")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	err = m.Remediate(context.Background(), ActionPrune)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRemediation))
}

func TestHistoryIsBounded(t *testing.T) {
	t.Parallel()

	pipe := newFakePipeline()
	cfg := testConfig()
	cfg.History = 3
	m := NewMonitor(pipe, nil, cfg)
	assert.Nil(t, m.LastReport())

	for range 5 {
		pipe.advance(10)
		m.RunCycle(context.Background())
	}
	history := m.History()
	require.Len(t, history, 3)
	assert.Same(t, m.LastReport(), history[2])
	assert.True(t, history[0].Time.Before(history[2].Time) || history[0].Time.Equal(history[2].Time))
}

func TestMetricsRecorded(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	hm, err := metrics.NewHealthMetrics(reg)
	require.NoError(t, err)

	pipe := newFakePipeline()
	cfg := testConfig()
	cfg.Metrics = hm
	m := NewMonitor(pipe, &fakeStore{pingErr: stderrors.New("down"), reconnectErr: stderrors.New("down")}, cfg)

	pipe.advance(10)
	m.RunCycle(context.Background())
	assert.InDelta(t, 1, testutil.ToFloat64(hm.Checks), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(hm.Issues.WithLabelValues("low")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(hm.Remediations.WithLabelValues(ActionReconnect, metrics.StatusError)), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(hm.CPUPercent), 1e-9)
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	pipe := newFakePipeline()
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	m := NewMonitor(pipe, nil, cfg)

	m.Stop() // before Start
	m.Start(context.Background())
	m.Start(context.Background())
	assert.Eventually(t, func() bool { return m.LastReport() != nil }, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestSeverityEscalation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base        Severity
		consecutive int
		want        Severity
	}{
		{SeverityLow, 1, SeverityLow},
		{SeverityLow, 2, SeverityMedium},
		{SeverityLow, 3, SeverityHigh},
		{SeverityLow, 9, SeverityCritical},
		{SeverityHigh, 1, SeverityHigh},
		{SeverityHigh, 3, SeverityCritical},
		{SeverityMedium, 0, SeverityMedium},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.base.escalate(tt.consecutive), "%s x%d", tt.base, tt.consecutive)
	}
	assert.Equal(t, "critical", SeverityCritical.String())
}
