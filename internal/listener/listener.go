// Package listener wires the capture path, the learning loop and the health
// monitor into one continuously running listener.
//
// Frames flow from the audio source through the frame assembler and the
// feature extractor into the ring buffer. Every hop the capture goroutine
// cuts an analysis window and hands it to the analysis goroutine without
// blocking; a busy analyzer means the window is skipped. Fired decisions
// become detection events published on the event bus and offered to the
// learning loop.
package listener

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/datastore"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/events"
	"github.com/tphakala/hearken/internal/health"
	"github.com/tphakala/hearken/internal/learning"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/observability"
	"github.com/tphakala/hearken/internal/observability/metrics"
	"github.com/tphakala/hearken/internal/trigger"
)

const busShutdownTimeout = 5 * time.Second

type lifecycle int

const (
	stateIdle lifecycle = iota
	stateRunning
	stateStopped
)

// Option configures a Listener.
type Option func(*options)

type options struct {
	metrics   *observability.Metrics
	consumers []events.Consumer
	sampler   health.Sampler
}

// WithMetrics records listener, learning, health and bus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithConsumers registers extra event bus consumers such as notifiers.
func WithConsumers(c ...events.Consumer) Option {
	return func(o *options) { o.consumers = append(o.consumers, c...) }
}

// WithSampler replaces the gopsutil resource sampler.
func WithSampler(s health.Sampler) Option {
	return func(o *options) { o.sampler = s }
}

// Listener owns the capture, analysis, learning and health cadences.
type Listener struct {
	settings *conf.Settings
	source   audiocore.AudioSource
	store    datastore.Interface
	metrics  *observability.Metrics

	ring      *audiocore.RingBuffer
	extractor *audiocore.FeatureExtractor
	assembler *audiocore.FrameAssembler // capture goroutine only
	features  *featureLog
	matcher   *trigger.Matcher
	learning  *learning.Store
	loop      *learning.Loop
	bus       *events.Bus
	syslog    *events.SystemLog
	monitor   *health.Monitor
	cooldown  *cache.Cache // trigger name -> last emit, nil when disabled

	windows       chan *trigger.Window
	frameMillis   int
	windowSeconds float64
	hopFrames     uint64
	sinceHop      uint64 // capture goroutine only

	level          atomic.Uint64 // math.Float64bits
	bufferSeconds  atomic.Int64
	captureRunning atomic.Bool
	resetRequested atomic.Bool
	detections     atomic.Uint64
	skipped        atomic.Uint64

	errMu     sync.Mutex
	errCounts map[errors.ErrorCategory]uint64

	bootOnce sync.Once
	runMu    sync.Mutex
	state    lifecycle
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New builds a stopped listener. classifier backs the trigger matcher and
// store is the persistence collaborator; neither may be nil.
func New(settings *conf.Settings, source audiocore.AudioSource, classifier trigger.Classifier, store datastore.Interface, opts ...Option) (*Listener, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if source == nil || classifier == nil || store == nil {
		return nil, errors.Newf("listener requires a source, a classifier and a store").
			Component("listener").
			Category(errors.CategoryValidation).
			Build()
	}
	audio := &settings.Audio
	if got := source.Format().SampleRate; got != audio.SampleRate {
		return nil, errors.Newf("source delivers %d Hz, configured for %d Hz", got, audio.SampleRate).
			Component("listener").
			Category(errors.CategoryConfiguration).
			Context("source", source.Name()).
			Build()
	}

	frameSize := audio.FrameSize()
	ring, err := audiocore.NewRingBuffer(float64(settings.Buffer.DurationSeconds), audio.SampleRate, frameSize)
	if err != nil {
		return nil, err
	}
	assembler, err := audiocore.NewFrameAssembler(source.Format(), frameSize, audio.Gain)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		settings:      settings,
		source:        source,
		store:         store,
		metrics:       o.metrics,
		ring:          ring,
		extractor:     audiocore.NewFeatureExtractor(),
		assembler:     assembler,
		features:      newFeatureLog(framesFor(settings.Buffer.DurationSeconds, audio.FrameMillis)),
		windows:       make(chan *trigger.Window, 1),
		frameMillis:   audio.FrameMillis,
		windowSeconds: float64(settings.Trigger.WindowMillis) / 1000,
		hopFrames:     uint64(max(settings.Trigger.HopMillis/audio.FrameMillis, 1)),
		errCounts:     make(map[errors.ErrorCategory]uint64),
	}
	l.bufferSeconds.Store(int64(settings.Buffer.DurationSeconds))

	// Expired entries are dropped on lookup; there is no janitor goroutine.
	if cooldown := time.Duration(settings.Trigger.CooldownSeconds) * time.Second; cooldown > 0 {
		l.cooldown = cache.New(cooldown, 0)
	}

	boost := settings.Trigger.Boost
	l.matcher, err = trigger.NewMatcher(classifier, settings.Trigger.Watched, settings.Trigger.Sensitivity,
		trigger.WithBoostPolicy(trigger.LinearBoost{Base: boost.Base, Step: boost.Step, Cap: boost.Cap}),
		trigger.WithSmoothing(settings.Trigger.SmoothingGap, l.widen))
	if err != nil {
		return nil, err
	}

	timeout := settings.Output.Timeout()
	l.learning = learning.NewStore(store, learning.StoreOptions{
		CorpusLimit: settings.Learning.CorpusLimit,
		CommonWords: settings.Learning.CommonWords,
		Timeout:     timeout,
	})
	l.loop = learning.NewLoop(l.learning, store, store, learning.LoopConfig{
		Interval:    settings.LearningInterval(),
		RecentLimit: settings.Learning.RecentLimit,
		InboxSize:   settings.Learning.InboxSize,
		Timeout:     timeout,
		Metrics:     l.learningMetrics(),
	})

	l.syslog = events.NewSystemLog(store, settings.Output.LogRate, timeout)

	busCfg := events.ConfigFromSettings(&settings.Output)
	busCfg.OnFailure = l.onDeliveryFailure
	if o.metrics != nil {
		busCfg.Metrics = o.metrics.EventBus
	}
	l.bus = events.New(busCfg)
	consumers := append([]events.Consumer{
		events.NewPersistenceConsumer(store, timeout),
		events.ConsumerFunc{ID: "syslog", Fn: l.logDetection},
	}, o.consumers...)
	for _, c := range consumers {
		if err := l.bus.Register(c); err != nil {
			return nil, err
		}
	}

	healthCfg := health.ConfigFromSettings(settings)
	healthCfg.OnReport = l.onHealthReport
	if o.sampler != nil {
		healthCfg.Sampler = o.sampler
	}
	if o.metrics != nil {
		healthCfg.Metrics = o.metrics.Health
	}
	l.monitor = health.NewMonitor(l, store, healthCfg)

	return l, nil
}

// framesFor returns the number of frames covering seconds, plus one.
func framesFor(seconds, frameMillis int) int {
	return seconds*1000/max(frameMillis, 1) + 1
}

// Start loads the learning state once, starts the audio source and then
// every cadence. A device failure is returned as a device error with
// nothing else started, so Start can be retried.
func (l *Listener) Start(ctx context.Context) error {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	switch l.state {
	case stateRunning:
		return nil
	case stateStopped:
		return errors.Newf("listener was stopped").
			Component("listener").
			Category(errors.CategoryState).
			Build()
	}

	l.bootOnce.Do(func() { l.boot(ctx) })

	runCtx, cancel := context.WithCancel(ctx)
	if err := l.source.Start(runCtx); err != nil {
		cancel()
		return deviceError(err, "start", l.source.Name())
	}
	l.runCtx, l.cancel = runCtx, cancel
	l.state = stateRunning
	l.setCaptureRunning(true)

	l.bus.Start(context.WithoutCancel(runCtx)) // drained by Shutdown
	l.loop.Start(runCtx)
	l.monitor.Start(runCtx)

	l.wg.Add(2)
	go l.captureLoop(runCtx)
	go l.analysisLoop(runCtx)

	GetLogger().Info("listener started",
		logger.String("source", l.source.Name()),
		logger.Int("buffer_seconds", int(l.bufferSeconds.Load())),
		logger.Float64("sensitivity", l.matcher.Sensitivity()),
		logger.Any("watched", l.matcher.Watched()))
	l.writeLifecycleLog(datastore.CategoryStartup, "listener started")
	return nil
}

// boot loads the persisted learning state. An unreachable store is logged
// and the listener starts with an empty state; the learning loop retries
// the load and nothing is flushed until it succeeds.
func (l *Listener) boot(ctx context.Context) {
	if err := l.learning.Load(ctx); err != nil {
		l.countError(errors.CategoryPersistence)
		GetLogger().Warn("learning state unavailable, starting empty", logger.Error(err))
	}
}

// Stop halts every cadence, releases the audio source, flushes the learning
// state and drains the event bus. Frames not yet analyzed are discarded.
// Stop is safe to call before Start and more than once.
func (l *Listener) Stop() {
	l.runMu.Lock()
	prev := l.state
	l.state = stateStopped
	cancel := l.cancel
	l.cancel = nil
	l.runMu.Unlock()

	if prev != stateRunning {
		return
	}

	cancel()
	l.wg.Wait()

	if err := l.source.Stop(); err != nil {
		GetLogger().Warn("audio source did not stop cleanly", logger.Error(err))
	}
	l.setCaptureRunning(false)

	l.monitor.Stop()
	l.loop.Stop()
	l.writeLifecycleLog(datastore.CategoryShutdown, "listener stopped")

	if err := l.bus.Shutdown(busShutdownTimeout); err != nil {
		GetLogger().Warn("event bus did not drain", logger.Error(err))
	}
	GetLogger().Info("listener stopped", logger.Uint64("detections", l.detections.Load()))
}

func (l *Listener) writeLifecycleLog(category, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.settings.Output.Timeout())
	defer cancel()
	err := l.syslog.WriteAlways(ctx, datastore.LevelInfo, category, message, map[string]any{
		"source":         l.source.Name(),
		"buffer_seconds": l.bufferSeconds.Load(),
		"watched":        l.matcher.Watched(),
		"detections":     l.detections.Load(),
	})
	if err != nil {
		GetLogger().Debug("lifecycle log not stored", logger.String("category", category), logger.Error(err))
	}
}

// Reconfigure changes the rolling buffer duration. The buffer restarts
// cold: previously buffered audio and windows not yet analyzed are
// discarded.
func (l *Listener) Reconfigure(bufferDurationSeconds int) error {
	if bufferDurationSeconds <= 0 {
		return errors.Newf("buffer duration must be positive, got %d", bufferDurationSeconds).
			Component("listener").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := l.ring.Resize(float64(bufferDurationSeconds)); err != nil {
		return err
	}
	l.drainWindows()
	l.features.reset(framesFor(bufferDurationSeconds, l.frameMillis))
	l.matcher.ResetHistory()
	l.bufferSeconds.Store(int64(bufferDurationSeconds))
	GetLogger().Info("buffer reconfigured", logger.Int("seconds", bufferDurationSeconds))
	return nil
}

// SetWatched replaces the watched trigger names at runtime.
func (l *Listener) SetWatched(names []string) {
	l.matcher.SetWatched(names)
}

// SetSensitivity changes the emit threshold at runtime.
func (l *Listener) SetSensitivity(v float64) error {
	return l.matcher.SetSensitivity(v)
}

func (l *Listener) setCaptureRunning(running bool) {
	l.captureRunning.Store(running)
	if m := l.listenerMetrics(); m != nil {
		if running {
			m.CaptureRunning.Set(1)
		} else {
			m.CaptureRunning.Set(0)
		}
	}
}

func (l *Listener) countError(category errors.ErrorCategory) {
	l.errMu.Lock()
	l.errCounts[category]++
	l.errMu.Unlock()
}

func (l *Listener) listenerMetrics() *metrics.ListenerMetrics {
	if l.metrics == nil {
		return nil
	}
	return l.metrics.Listener
}

func (l *Listener) learningMetrics() *metrics.LearningMetrics {
	if l.metrics == nil {
		return nil
	}
	return l.metrics.Learning
}

func deviceError(err error, op, device string) error {
	if errors.IsDeviceError(err) {
		return err
	}
	return errors.New(err).
		Component("listener").
		Category(errors.CategoryDevice).
		Context("operation", op).
		Context("device", device).
		Build()
}

// AudioLevel returns the level of the latest frame in [0, 1].
func (l *Listener) AudioLevel() float64 {
	return math.Float64frombits(l.level.Load())
}

// BufferUtilization returns the ring buffer fill ratio in [0, 1].
func (l *Listener) BufferUtilization() float64 {
	return l.ring.Utilization()
}

// LastHealthReport returns the latest health report, nil before the first
// health cycle.
func (l *Listener) LastHealthReport() *health.Report {
	return l.monitor.LastReport()
}

// LearningSummary returns the current learning state summary.
func (l *Listener) LearningSummary() learning.Summary {
	return l.learning.Summary()
}

// Detections returns the number of detections emitted since start.
func (l *Listener) Detections() uint64 {
	return l.detections.Load()
}

// CaptureRunning reports whether the audio source is delivering.
func (l *Listener) CaptureRunning() bool {
	return l.captureRunning.Load() && l.source.IsActive()
}

// ErrorCounts returns cumulative error counts by category.
func (l *Listener) ErrorCounts() map[errors.ErrorCategory]uint64 {
	l.errMu.Lock()
	out := make(map[errors.ErrorCategory]uint64, len(l.errCounts)+1)
	for k, v := range l.errCounts {
		out[k] = v
	}
	l.errMu.Unlock()
	if failures := l.loop.Stats().Failures; failures > 0 {
		out[errors.CategoryLearningCycle] += failures
	}
	return out
}
