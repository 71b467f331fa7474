package learning

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/hearken/internal/detection"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// memPersister is an in-memory Persister that can be made unreachable.
type memPersister struct {
	mu    sync.Mutex
	saved *State
	saves int
	fail  error
}

func (p *memPersister) LoadLearningState(context.Context) (*State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	return p.saved, nil
}

func (p *memPersister) SaveLearningState(_ context.Context, s *State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.saved = s
	p.saves++
	return nil
}

func (p *memPersister) setFail(err error) {
	p.mu.Lock()
	p.fail = err
	p.mu.Unlock()
}

// memHistory serves a fixed set of records.
type memHistory struct {
	mu       sync.Mutex
	records  []detection.Record
	sessions []Session
	fail     error
}

func (h *memHistory) QueryRecentDetections(_ context.Context, limit int) ([]detection.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail != nil {
		return nil, h.fail
	}
	out := slices.Clone(h.records)
	slices.Reverse(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *memHistory) AppendLearningSession(_ context.Context, s Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = append(h.sessions, s)
	return nil
}

func (h *memHistory) add(r detection.Record) {
	h.mu.Lock()
	h.records = append(h.records, r)
	h.mu.Unlock()
}

func (h *memHistory) setFail(err error) {
	h.mu.Lock()
	h.fail = err
	h.mu.Unlock()
}

func record(n int, name string, confidence float64, transcript string) detection.Record {
	return detection.Record{
		ID:         uint(n),
		EventID:    fmt.Sprintf("evt-%03d", n),
		Trigger:    name,
		Confidence: confidence,
		Transcript: transcript,
		Timestamp:  baseTime.Add(time.Duration(n) * time.Second),
	}
}
