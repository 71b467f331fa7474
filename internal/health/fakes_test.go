package health

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/tphakala/hearken/internal/datastore"
	"github.com/tphakala/hearken/internal/errors"
)

type fakeStore struct {
	mu           sync.Mutex
	pingErr      error
	reconnectErr error
	pruneErr     error
	counts       datastore.Counts
	pings        int
	reconnects   int
	prunes       int
	rows         []*datastore.PerformanceMetric

	// reconnectGate, when set, blocks Reconnect until closed.
	reconnectGate    chan struct{}
	reconnectEntered chan struct{}
}

func (s *fakeStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	return s.pingErr
}

func (s *fakeStore) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	s.reconnects++
	gate, entered := s.reconnectGate, s.reconnectEntered
	err := s.reconnectErr
	if err == nil {
		s.pingErr = nil
	}
	s.mu.Unlock()
	if gate != nil {
		if entered != nil {
			close(entered)
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *fakeStore) Prune(_ context.Context, limits datastore.RetentionLimits) (datastore.PruneResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prunes++
	if s.pruneErr != nil {
		return datastore.PruneResult{}, s.pruneErr
	}
	res := datastore.PruneResult{}
	if limits.SystemLogs > 0 && s.counts.SystemLogs > int64(limits.SystemLogs) {
		res.SystemLogs = s.counts.SystemLogs - int64(limits.SystemLogs)
		s.counts.SystemLogs = int64(limits.SystemLogs)
	}
	if limits.PerformanceMetrics > 0 && s.counts.PerformanceMetrics > int64(limits.PerformanceMetrics) {
		res.PerformanceMetrics = s.counts.PerformanceMetrics - int64(limits.PerformanceMetrics)
		s.counts.PerformanceMetrics = int64(limits.PerformanceMetrics)
	}
	return res, nil
}

func (s *fakeStore) Counts(context.Context) (datastore.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts, nil
}

func (s *fakeStore) AppendPerformanceMetric(_ context.Context, m *datastore.PerformanceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingErr != nil {
		return s.pingErr
	}
	s.rows = append(s.rows, m)
	return nil
}

func (s *fakeStore) set(fn func(s *fakeStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

type storeCalls struct {
	pings      int
	reconnects int
	prunes     int
	rows       []*datastore.PerformanceMetric
	counts     datastore.Counts
}

func (s *fakeStore) calls() storeCalls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeCalls{
		pings:      s.pings,
		reconnects: s.reconnects,
		prunes:     s.prunes,
		rows:       append([]*datastore.PerformanceMetric(nil), s.rows...),
		counts:     s.counts,
	}
}

type fakePipeline struct {
	mu       sync.Mutex
	status   PipelineStatus
	resets   int
	restarts int
	resetErr error
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{status: PipelineStatus{
		Running:           true,
		BufferUtilization: 1,
		Errors:            map[errors.ErrorCategory]uint64{},
	}}
}

func (p *fakePipeline) Status() PipelineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.status
	st.Errors = maps.Clone(p.status.Errors)
	return st
}

func (p *fakePipeline) ResetPipeline(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return p.resetErr
}

func (p *fakePipeline) RestartCapture(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restarts++
	p.status.Running = true
	return nil
}

// advance simulates capture progress between cycles.
func (p *fakePipeline) advance(frames uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.FramesWritten += frames
}

func (p *fakePipeline) update(fn func(st *PipelineStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.status)
}

type fakeSampler struct {
	res Resources
	err error
}

func (s fakeSampler) Sample(context.Context) (Resources, error) {
	return s.res, s.err
}

func testConfig() Config {
	return Config{
		AutoFix:           true,
		CPUThreshold:      90,
		MemoryThreshold:   90,
		DiskThreshold:     95,
		Timeout:           time.Second,
		ReconnectAttempts: 3,
		ReconnectDelay:    time.Millisecond,
		Sampler:           fakeSampler{res: Resources{CPUPercent: 12, MemoryPercent: 40, DiskPercent: 50}},
	}
}
