// Package synthetic provides a generator audio source used for dry runs
// without a capture device and for tests.
package synthetic

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/errors"
)

// Signal shapes
const (
	Silence = "silence"
	Tone    = "tone"
	Noise   = "noise"
)

// Config configures a generator.
type Config struct {
	Signal     string
	Amplitude  float64 // 0-1
	Frequency  float64 // Hz, tone only
	SampleRate int
	ChunkSize  int           // samples per emitted chunk, default 10 ms
	Realtime   bool          // pace chunks at wall clock speed
	Limit      time.Duration // total audio to emit, zero is unbounded
	Seed       uint64
}

// Source emits generated S16LE chunks.
type Source struct {
	cfg Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	output  chan []byte
	errs    chan error
	active  atomic.Bool
	emitted atomic.Int64 // samples
}

// New validates cfg and returns an idle source.
func New(cfg Config) (*Source, error) {
	switch cfg.Signal {
	case Silence, Tone, Noise:
	default:
		return nil, errors.Newf("unknown synthetic signal %q", cfg.Signal).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.SampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate %d", cfg.SampleRate).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = cfg.SampleRate / 100
	}
	cfg.Amplitude = math.Max(0, math.Min(1, cfg.Amplitude))
	return &Source{
		cfg:    cfg,
		output: make(chan []byte, 32),
		errs:   make(chan error, 4),
	}, nil
}

// Name returns the signal description.
func (s *Source) Name() string { return "synthetic:" + s.cfg.Signal }

// Output returns the chunk channel. It stays open across restarts.
func (s *Source) Output() <-chan []byte { return s.output }

// Errors never reports anything for a generator but satisfies the device
// contract.
func (s *Source) Errors() <-chan error { return s.errs }

// IsActive reports whether the generator goroutine runs.
func (s *Source) IsActive() bool { return s.active.Load() }

// Format returns mono 16-bit at the configured rate.
func (s *Source) Format() audiocore.AudioFormat {
	return audiocore.AudioFormat{SampleRate: s.cfg.SampleRate, Channels: 1, BitDepth: 16}
}

// Emitted returns the duration of audio generated so far.
func (s *Source) Emitted() time.Duration {
	return time.Duration(s.emitted.Load()) * time.Second / time.Duration(s.cfg.SampleRate)
}

// Start launches the generator. Starting an active source is an error.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.Load() {
		return errors.Newf("synthetic source already running").
			Component("audiocore").
			Category(errors.CategoryState).
			Build()
	}

	genCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.active.Store(true)
	go s.run(genCtx, s.done)
	return nil
}

// Stop halts the generator and waits for it to exit. Safe to call on a
// source that never started.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.active.Store(false)
	return nil
}

func (s *Source) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	rng := rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^0x9e3779b97f4a7c15))
	chunkDur := time.Duration(s.cfg.ChunkSize) * time.Second / time.Duration(s.cfg.SampleRate)

	var ticker *time.Ticker
	if s.cfg.Realtime {
		ticker = time.NewTicker(chunkDur)
		defer ticker.Stop()
	}

	limit := int64(-1)
	if s.cfg.Limit > 0 {
		limit = int64(s.cfg.Limit.Seconds() * float64(s.cfg.SampleRate))
	}

	phase := 0.0
	step := 2 * math.Pi * s.cfg.Frequency / float64(s.cfg.SampleRate)

	for {
		produced := s.emitted.Load()
		if limit >= 0 && produced >= limit {
			<-ctx.Done()
			return
		}
		n := s.cfg.ChunkSize
		if limit >= 0 {
			n = int(min(int64(n), limit-produced))
		}

		chunk := make([]byte, n*2)
		for i := range n {
			var v float64
			switch s.cfg.Signal {
			case Tone:
				v = s.cfg.Amplitude * math.Sin(phase)
				phase += step
			case Noise:
				v = s.cfg.Amplitude * (rng.Float64()*2 - 1)
			}
			sample := int16(math.Round(v * 32767))
			chunk[i*2] = byte(sample)
			chunk[i*2+1] = byte(sample >> 8)
		}
		phase = math.Mod(phase, 2*math.Pi)

		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
		select {
		case <-ctx.Done():
			return
		case s.output <- chunk:
			s.emitted.Add(int64(n))
		}
	}
}
