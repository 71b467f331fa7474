// Package listen implements the listen command, which runs the listener
// until interrupted.
package listen

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/hearken/internal/buildinfo"
	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/datastore"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/events"
	"github.com/tphakala/hearken/internal/listener"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/notify"
	"github.com/tphakala/hearken/internal/observability"
)

const (
	statusInterval   = time.Minute
	deviceRetryFirst = 2 * time.Second
	deviceRetryMax   = time.Minute
)

// Command creates the listen command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen continuously for watched triggers",
		Long:  "Capture audio from the configured source and report wake words and sound events until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, build)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

// setupFlags configures flags specific to the listen command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("source", "", "Capture device name or ID, \"sysdefault\" or \"synthetic\"")
	cmd.Flags().Float64P("sensitivity", "s", 0, "Detection threshold between 0.0 and 1.0")
	cmd.Flags().Int("buffer", 0, "Rolling audio buffer length in seconds")
	cmd.Flags().StringSlice("watch", nil, "Wake words and sound classes to watch")
	cmd.Flags().Bool("telemetry", false, "Enable Prometheus telemetry endpoint")
	cmd.Flags().String("listen", "", "Listen address and port of telemetry endpoint")

	bindings := map[string]string{
		"source":      "audio.source",
		"sensitivity": "trigger.sensitivity",
		"buffer":      "buffer.durationseconds",
		"watch":       "trigger.watched",
		"telemetry":   "telemetry.enabled",
		"listen":      "telemetry.listen",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}

// Run wires every component and blocks until ctx is cancelled or SIGINT or
// SIGTERM arrives.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := GetLogger()
	log.Info("starting hearken",
		logger.String("version", build.GetVersion()),
		logger.String("node", build.GetNodeID()))

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	store, err := datastore.New(&settings.Output, m.Datastore)
	if err != nil {
		return err
	}
	if err := store.Open(ctx); err != nil {
		log.Warn("database unreachable, starting without persistence", logger.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close database", logger.Error(err))
		}
	}()

	classifier, closeClassifier, err := buildClassifier(settings)
	if err != nil {
		return err
	}
	defer closeClassifier()

	source, err := buildSource(settings)
	if err != nil {
		return err
	}

	consumers, closeConsumers, err := buildNotifiers(ctx, settings, build, m)
	if err != nil {
		return err
	}
	defer closeConsumers()

	l, err := listener.New(settings, source, classifier, store,
		listener.WithMetrics(m),
		listener.WithConsumers(consumers...))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(&settings.Telemetry, m)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}
	g.Go(func() error {
		if err := startWithRetry(gctx, l, source.Name(), deviceRetryFirst); err != nil {
			return err
		}
		<-gctx.Done()
		l.Stop()
		return nil
	})
	g.Go(func() error {
		reportStatus(gctx, l)
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("hearken stopped", logger.Uint64("detections", l.Detections()))
	return err
}

type starter interface {
	Start(ctx context.Context) error
}

// startWithRetry starts the listener, retrying device failures with
// doubling backoff until ctx is cancelled. Other errors are returned.
func startWithRetry(ctx context.Context, l starter, device string, delay time.Duration) error {
	for attempt := 1; ; attempt++ {
		err := l.Start(ctx)
		if err == nil {
			return nil
		}
		if !errors.IsDeviceError(err) {
			return err
		}
		GetLogger().Warn("audio device unavailable, retrying",
			logger.String("device", device),
			logger.Int("attempt", attempt),
			logger.Duration("retry_in", delay),
			logger.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, deviceRetryMax)
	}
}

// reportStatus logs the listener status every statusInterval.
func reportStatus(ctx context.Context, l *listener.Listener) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary := l.LearningSummary()
			fields := []logger.Field{
				logger.Float64("audio_level", l.AudioLevel()),
				logger.Float64("buffer_utilization", l.BufferUtilization()),
				logger.Bool("capture_running", l.CaptureRunning()),
				logger.Uint64("detections", l.Detections()),
				logger.Int("patterns", summary.Patterns),
				logger.Float64("false_positive_rate", summary.FalsePositiveRate),
			}
			if r := l.LastHealthReport(); r != nil {
				fields = append(fields, logger.Bool("healthy", r.Healthy()), logger.Int("issues", len(r.Issues)))
			}
			GetLogger().Info("listener status", fields...)
		}
	}
}

// buildNotifiers returns the enabled alert outlets as bus consumers and a
// function closing them.
func buildNotifiers(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, m *observability.Metrics) ([]events.Consumer, func(), error) {
	var (
		consumers []events.Consumer
		closers   []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if settings.Notify.MQTT.Enabled {
		mqtt := notify.NewMQTT(&settings.Notify.MQTT, build.GetNodeID(), m.Notify)
		if err := mqtt.Connect(ctx); err != nil {
			GetLogger().Warn("mqtt broker unreachable, mqtt publishing disabled",
				logger.String("broker", logger.RedactSensitiveData(settings.Notify.MQTT.Broker)),
				logger.Error(err))
		} else {
			consumers = append(consumers, mqtt)
			closers = append(closers, mqtt.Close)
		}
	}
	if settings.Notify.Push.Enabled {
		push, err := notify.NewPush(&settings.Notify.Push, build.GetNodeID(), m.Notify)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		consumers = append(consumers, push)
	}
	return consumers, closeAll, nil
}

// GetLogger returns the listen command logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("listen")
}
