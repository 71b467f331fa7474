// Package malgo captures audio from a sound card through miniaudio.
package malgo

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/errors"
)

// Config selects and configures the capture device.
type Config struct {
	Device     string // name, decoded ID, "sysdefault" or empty for the default
	Backend    string // empty picks the OS default
	SampleRate int
}

// Source implements audiocore.AudioSource on a malgo capture device. The
// output channel outlives Start/Stop cycles so consumers can keep ranging
// over it across restarts.
type Source struct {
	cfg Config

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	name   string
	format malgo.FormatType

	output  chan []byte
	errs    chan error
	running atomic.Bool
	dropped atomic.Uint64
}

// New returns an idle source.
func New(cfg Config) *Source {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Source{
		cfg:    cfg,
		name:   cfg.Device,
		output: make(chan []byte, 64),
		errs:   make(chan error, 8),
	}
}

// Name returns the selected device name once started.
func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Source) Output() <-chan []byte { return s.output }
func (s *Source) Errors() <-chan error  { return s.errs }
func (s *Source) IsActive() bool        { return s.running.Load() }

// Dropped returns the number of device buffers dropped because the consumer
// was behind.
func (s *Source) Dropped() uint64 { return s.dropped.Load() }

// Format returns mono S16 at the configured rate; conversion from the
// device format happens in the callback.
func (s *Source) Format() audiocore.AudioFormat {
	return audiocore.AudioFormat{SampleRate: s.cfg.SampleRate, Channels: 1, BitDepth: 16}
}

// Start opens and starts the capture device. Failures are device errors;
// every partially acquired resource is released before returning.
func (s *Source) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.Newf("capture device already running").
			Component("audiocore").
			Category(errors.CategoryState).
			Context("device", s.name).
			Build()
	}

	backend, err := backendFor(s.cfg.Backend)
	if err != nil {
		return err
	}

	mctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return deviceError(err, "init_context", s.cfg.Device)
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		releaseContext(mctx)
		return deviceError(err, "enumerate_devices", s.cfg.Device)
	}
	idx := matchDevice(describe(infos), s.cfg.Device)
	if idx < 0 {
		releaseContext(mctx)
		return errors.Newf("no capture device matches %q", s.cfg.Device).
			Component("audiocore").
			Category(errors.CategoryDevice).
			Context("available_devices", len(infos)).
			Build()
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = infos[idx].ID.Pointer()
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		releaseContext(mctx)
		return deviceError(err, "init_device", infos[idx].Name())
	}

	s.format = device.CaptureFormat()
	if err := device.Start(); err != nil {
		device.Uninit()
		releaseContext(mctx)
		return deviceError(err, "start_device", infos[idx].Name())
	}

	s.ctx = mctx
	s.device = device
	s.name = infos[idx].Name()
	s.running.Store(true)
	return nil
}

// Stop releases the device. Calling it on a source that is not running is a
// no-op.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return nil
	}

	var stopErr error
	if s.device != nil {
		stopErr = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		releaseContext(s.ctx)
		s.ctx = nil
	}
	if stopErr != nil {
		return deviceError(stopErr, "stop_device", s.name)
	}
	return nil
}

// onData runs on the audio thread and must not block.
func (s *Source) onData(_, input []byte, _ uint32) {
	chunk, err := toS16(input, s.format)
	if err != nil {
		s.reportError(err)
		return
	}
	select {
	case s.output <- chunk:
	default:
		s.dropped.Add(1)
	}
}

// onStop is invoked by miniaudio when the device stops, including after an
// unplug. The listener decides whether to restart.
func (s *Source) onStop() {
	if !s.running.Load() {
		return
	}
	s.reportError(errors.Newf("capture device stopped unexpectedly").
		Component("audiocore").
		Category(errors.CategoryDevice).
		Context("device", s.cfg.Device).
		Build())
}

func (s *Source) reportError(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func releaseContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

func deviceError(err error, op, device string) error {
	return errors.New(err).
		Component("audiocore").
		Category(errors.CategoryDevice).
		Context("operation", op).
		Context("device", device).
		Build()
}
