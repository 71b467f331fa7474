package listener

import (
	"context"
	"sync"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/datastore"
	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/learning"
)

type logEntry struct {
	level    string
	category string
	message  string
}

// memStore is an in-memory datastore.Interface.
type memStore struct {
	mu         sync.Mutex
	pingErr    error
	state      *learning.State
	detections []*detection.Event
	logs       []logEntry
	perf       int
	sessions   int
}

var _ datastore.Interface = (*memStore)(nil)

func (s *memStore) unreachable() error {
	if s.pingErr != nil {
		return errors.New(s.pingErr).Category(errors.CategoryPersistence).Build()
	}
	return nil
}

func (s *memStore) LoadLearningState(context.Context) (*learning.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unreachable(); err != nil {
		return nil, err
	}
	return s.state, nil
}

func (s *memStore) SaveLearningState(_ context.Context, state *learning.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unreachable(); err != nil {
		return err
	}
	s.state = state
	return nil
}

func (s *memStore) QueryRecentDetections(_ context.Context, limit int) ([]detection.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unreachable(); err != nil {
		return nil, err
	}
	var out []detection.Record
	for i := len(s.detections) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, detection.NewRecord(s.detections[i]))
	}
	return out, nil
}

func (s *memStore) AppendLearningSession(context.Context, learning.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unreachable(); err != nil {
		return err
	}
	s.sessions++
	return nil
}

func (s *memStore) AppendDetection(_ context.Context, e *detection.Event) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unreachable(); err != nil {
		return 0, err
	}
	s.detections = append(s.detections, e)
	return uint(len(s.detections)), nil
}

func (s *memStore) AppendSystemLog(_ context.Context, level, category, message string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unreachable(); err != nil {
		return err
	}
	s.logs = append(s.logs, logEntry{level: level, category: category, message: message})
	return nil
}

func (s *memStore) AppendPerformanceMetric(context.Context, *datastore.PerformanceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unreachable(); err != nil {
		return err
	}
	s.perf++
	return nil
}

func (s *memStore) MarkFalsePositive(context.Context, uint, bool) error { return nil }

func (s *memStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreachable()
}

func (s *memStore) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreachable()
}

func (s *memStore) Prune(context.Context, datastore.RetentionLimits) (datastore.PruneResult, error) {
	return datastore.PruneResult{}, nil
}

func (s *memStore) Counts(context.Context) (datastore.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return datastore.Counts{
		Detections:         int64(len(s.detections)),
		SystemLogs:         int64(len(s.logs)),
		LearningSessions:   int64(s.sessions),
		PerformanceMetrics: int64(s.perf),
	}, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) setPingErr(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

func (s *memStore) detectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.detections)
}

func (s *memStore) categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.logs))
	for _, e := range s.logs {
		out = append(out, e.category)
	}
	return out
}

// failingSource is an audio source whose device cannot be opened.
type failingSource struct {
	output chan []byte
	errs   chan error
}

func newFailingSource() *failingSource {
	return &failingSource{output: make(chan []byte), errs: make(chan error)}
}

func (f *failingSource) Name() string { return "broken" }
func (f *failingSource) Start(context.Context) error {
	return errors.Newf("device busy").Category(errors.CategoryDevice).Build()
}
func (f *failingSource) Stop() error           { return nil }
func (f *failingSource) Output() <-chan []byte { return f.output }
func (f *failingSource) Errors() <-chan error  { return f.errs }
func (f *failingSource) IsActive() bool        { return false }
func (f *failingSource) Format() audiocore.AudioFormat {
	return audiocore.AudioFormat{SampleRate: 16000, Channels: 1, BitDepth: 16}
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Main.Name = "test"
	s.Audio = conf.AudioSettings{Source: "synthetic", SampleRate: 16000, FrameMillis: 100}
	s.Buffer = conf.BufferSettings{DurationSeconds: 30, SnapshotSeconds: 2}
	s.Trigger = conf.TriggerSettings{
		Sensitivity:     0.7,
		Watched:         []string{"help"},
		WindowMillis:    1000,
		HopMillis:       500,
		CooldownSeconds: 60,
		SmoothingGap:    0.3,
		Boost:           conf.BoostSettings{Base: 0.6, Step: 0.05, Cap: 0.9},
	}
	s.Learning = conf.LearningSettings{IntervalSeconds: 3600, RecentLimit: 100, CommonWords: 50, CorpusLimit: 100, InboxSize: 16}
	s.Health = conf.HealthSettings{IntervalSeconds: 3600, History: 5, ErrorThreshold: 10}
	s.Output = conf.OutputSettings{
		TimeoutSeconds: 1,
		LogRate:        100,
		Queue:          conf.QueueSettings{Size: 16, Workers: 1},
		Retry:          conf.RetrySettings{MaxRetries: 0, InitialDelayMs: 1, MaxDelayMs: 1, Multiplier: 1},
	}
	return s
}
