package events

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/observability/metrics"
)

// RetryPolicy is an exponential backoff schedule.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// jitterFraction spreads retries of events that failed together.
const jitterFraction = 0.1

// Backoff returns the undithered wait before retry number attempt,
// counting from 1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.InitialDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Delay returns Backoff with up to 10% jitter either way, never above
// MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.Backoff(attempt))
	d *= 1 - jitterFraction + 2*jitterFraction*rand.Float64()
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Config configures a Bus.
type Config struct {
	QueueSize int
	Workers   int
	Retry     RetryPolicy
	Metrics   *metrics.EventBusMetrics
	OnFailure FailureHandler
}

// ConfigFromSettings maps output settings to a bus configuration.
func ConfigFromSettings(o *conf.OutputSettings) Config {
	return Config{
		QueueSize: o.Queue.Size,
		Workers:   o.Queue.Workers,
		Retry: RetryPolicy{
			MaxRetries:   o.Retry.MaxRetries,
			InitialDelay: time.Duration(o.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(o.Retry.MaxDelayMs) * time.Millisecond,
			Multiplier:   o.Retry.Multiplier,
		},
	}
}

// Bus is a bounded queue of detections delivered to every registered
// consumer. Publishing never blocks; a full queue drops the event.
type Bus struct {
	cfg   Config
	queue chan *detection.Event

	mu        sync.RWMutex // guards consumers, running and queue close
	consumers []Consumer
	running   bool
	closed    bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	retries   atomic.Uint64
	failures  atomic.Uint64
	panics    atomic.Uint64

	failMu     sync.Mutex
	failByName map[string]uint64
}

// New creates a stopped bus.
func New(cfg Config) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Bus{
		cfg:        cfg,
		queue:      make(chan *detection.Event, cfg.QueueSize),
		failByName: make(map[string]uint64),
	}
}

// Register adds a consumer. Names must be unique.
func (b *Bus) Register(c Consumer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.consumers {
		if existing.Name() == c.Name() {
			return errors.Newf("consumer %s already registered", c.Name()).
				Component("events").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	b.consumers = append(b.consumers, c)
	GetLogger().Debug("registered event consumer", logger.String("consumer", c.Name()))
	return nil
}

// Start launches the workers. It does nothing when already running or
// after Shutdown.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running || b.closed {
		return
	}
	ctx, b.cancel = context.WithCancel(ctx)
	b.running = true
	for i := range b.cfg.Workers {
		b.wg.Add(1)
		go b.worker(ctx, i)
	}
	GetLogger().Info("event bus started",
		logger.Int("workers", b.cfg.Workers),
		logger.Int("queue_size", b.cfg.QueueSize))
}

// TryPublish queues e without blocking. It returns false when the event was
// dropped because the queue is full or the bus is not running.
func (b *Bus) TryPublish(e *detection.Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		b.drop(e, "not_running")
		return false
	}
	select {
	case b.queue <- e:
		b.published.Add(1)
		if m := b.cfg.Metrics; m != nil {
			m.Published.Inc()
			m.QueueDepth.Set(float64(len(b.queue)))
		}
		return true
	default:
		b.drop(e, "queue_full")
		return false
	}
}

func (b *Bus) drop(e *detection.Event, reason string) {
	b.dropped.Add(1)
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.Dropped.Inc()
	}
	GetLogger().Debug("event dropped",
		logger.String("reason", reason),
		logger.String("trigger", e.Trigger))
}

// Shutdown stops accepting events and drains the queue. Deliveries still
// running after timeout are cancelled. Shutdown is final.
func (b *Bus) Shutdown(timeout time.Duration) error {
	b.mu.Lock()
	if !b.running {
		b.closed = true
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.closed = true
	close(b.queue)
	cancel := b.cancel
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		GetLogger().Info("event bus shutdown complete")
		return nil
	case <-time.After(timeout):
		cancel()
		<-done
		GetLogger().Warn("event bus shutdown timeout exceeded, pending deliveries cancelled",
			logger.Duration("timeout", timeout))
		return errors.Newf("event bus shutdown timeout exceeded").
			Component("events").
			Category(errors.CategoryTimeout).
			Context("timeout", timeout.String()).
			Build()
	}
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	b.failMu.Lock()
	byName := make(map[string]uint64, len(b.failByName))
	for k, v := range b.failByName {
		byName[k] = v
	}
	b.failMu.Unlock()

	return Stats{
		Published:          b.published.Load(),
		Dropped:            b.dropped.Load(),
		Delivered:          b.delivered.Load(),
		Retries:            b.retries.Load(),
		Failures:           b.failures.Load(),
		ConsumerPanics:     b.panics.Load(),
		QueueDepth:         len(b.queue),
		QueueCapacity:      cap(b.queue),
		FailuresByConsumer: byName,
	}
}

func (b *Bus) worker(ctx context.Context, id int) {
	defer b.wg.Done()
	log := GetLogger().With(logger.Int("worker_id", id))
	log.Debug("worker started")

	for e := range b.queue {
		if m := b.cfg.Metrics; m != nil {
			m.QueueDepth.Set(float64(len(b.queue)))
		}
		b.mu.RLock()
		consumers := append([]Consumer(nil), b.consumers...)
		b.mu.RUnlock()

		ectx := logger.WithTraceID(ctx, e.ID.String())
		elog := log.WithContext(ectx)
		for _, c := range consumers {
			b.deliver(ectx, c, e, elog)
		}
	}
	log.Debug("worker stopped")
}

// deliver hands e to c, retrying with backoff until it succeeds, fails
// permanently or retries run out.
func (b *Bus) deliver(ctx context.Context, c Consumer, e *detection.Event, log logger.Logger) {
	name := c.Name()
	for attempt := 0; ; attempt++ {
		err := b.consume(ctx, c, e)
		if err == nil {
			b.delivered.Add(1)
			if m := b.cfg.Metrics; m != nil {
				m.Deliveries.WithLabelValues(name, metrics.StatusSuccess).Inc()
			}
			return
		}

		if IsPermanent(err) || attempt >= b.cfg.Retry.MaxRetries || ctx.Err() != nil {
			b.fail(name, e, err, attempt, log)
			return
		}

		b.retries.Add(1)
		if m := b.cfg.Metrics; m != nil {
			m.Retries.WithLabelValues(name).Inc()
		}
		delay := b.cfg.Retry.Delay(attempt + 1)
		log.Debug("retrying consumer",
			logger.String("consumer", name),
			logger.Int("attempt", attempt+1),
			logger.Duration("delay", delay),
			logger.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.fail(name, e, err, attempt, log)
			return
		case <-timer.C:
		}
	}
}

func (b *Bus) consume(ctx context.Context, c Consumer, e *detection.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			err = Permanent(fmt.Errorf("consumer %s panicked: %v", c.Name(), r))
		}
	}()
	return c.Consume(ctx, e)
}

func (b *Bus) fail(name string, e *detection.Event, err error, attempt int, log logger.Logger) {
	b.failures.Add(1)
	b.failMu.Lock()
	b.failByName[name]++
	b.failMu.Unlock()
	if m := b.cfg.Metrics; m != nil {
		m.Deliveries.WithLabelValues(name, metrics.StatusError).Inc()
	}
	log.Warn("consumer gave up on event",
		logger.String("consumer", name),
		logger.String("event_id", e.ID.String()),
		logger.String("trigger", e.Trigger),
		logger.Int("attempts", attempt+1),
		logger.Error(err))
	if b.cfg.OnFailure != nil {
		b.cfg.OnFailure(name, e, err)
	}
}

// permanentError marks an error that retrying cannot fix.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the bus does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked permanent or carries a
// category that retrying cannot fix.
func IsPermanent(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return true
	}
	switch errors.CategoryOf(err) {
	case errors.CategoryValidation, errors.CategoryNotFound, errors.CategoryConfiguration:
		return true
	}
	return false
}
