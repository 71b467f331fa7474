package events

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/hearken/internal/logger"
)

// SystemLogStore persists operational log entries.
type SystemLogStore interface {
	AppendSystemLog(ctx context.Context, level, category, message string, data map[string]any) error
}

// SystemLog writes operational entries to the store at a bounded rate so
// an error storm cannot flood the database. Entries over the rate are
// counted and skipped; startup and shutdown entries bypass the limit.
type SystemLog struct {
	store      SystemLogStore
	limiter    *rate.Limiter
	timeout    time.Duration
	suppressed atomic.Uint64
	failed     atomic.Uint64
}

// NewSystemLog allows perSecond writes with a burst of twice that. A
// non-positive rate disables the limit.
func NewSystemLog(store SystemLogStore, perSecond float64, timeout time.Duration) *SystemLog {
	limit, burst := rate.Inf, 0
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(int(perSecond*2), 1)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SystemLog{
		store:   store,
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
	}
}

// Write stores an entry unless the rate is exceeded. Store failures are
// logged and returned.
func (s *SystemLog) Write(ctx context.Context, level, category, message string, data map[string]any) error {
	if !s.limiter.Allow() {
		s.suppressed.Add(1)
		return nil
	}
	return s.write(ctx, level, category, message, data)
}

// WriteAlways stores an entry regardless of the rate.
func (s *SystemLog) WriteAlways(ctx context.Context, level, category, message string, data map[string]any) error {
	return s.write(ctx, level, category, message, data)
}

func (s *SystemLog) write(ctx context.Context, level, category, message string, data map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.AppendSystemLog(ctx, level, category, message, data); err != nil {
		s.failed.Add(1)
		GetLogger().Warn("failed to write system log",
			logger.String("category", category),
			logger.Error(err))
		return err
	}
	return nil
}

// Suppressed returns how many entries the rate limit skipped.
func (s *SystemLog) Suppressed() uint64 {
	return s.suppressed.Load()
}

// Failed returns how many writes the store rejected.
func (s *SystemLog) Failed() uint64 {
	return s.failed.Load()
}
