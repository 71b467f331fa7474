// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateAudioSettings,
		validateBufferSettings,
		validateTriggerSettings,
		validateLearningSettings,
		validateHealthSettings,
		validateOutputSettings,
		validateNotifySettings,
		validateTelemetrySettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(s *Settings) error {
	a := &s.Audio
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("audio.samplerate %d out of range 8000-192000", a.SampleRate)
	}
	if a.FrameMillis < 10 || a.FrameMillis > 1000 {
		return fmt.Errorf("audio.framemillis %d out of range 10-1000", a.FrameMillis)
	}
	if a.Source == "synthetic" {
		switch a.Synthetic.Signal {
		case "silence", "tone", "noise":
		default:
			return fmt.Errorf("audio.synthetic.signal must be silence, tone or noise, got %q", a.Synthetic.Signal)
		}
		if a.Synthetic.Amplitude < 0 || a.Synthetic.Amplitude > 1 {
			return fmt.Errorf("audio.synthetic.amplitude must be between 0 and 1")
		}
	}
	return nil
}

func validateBufferSettings(s *Settings) error {
	if s.Buffer.DurationSeconds < 1 {
		return fmt.Errorf("buffer.durationseconds must be at least 1")
	}
	if s.Buffer.SnapshotSeconds < 0 || s.Buffer.SnapshotSeconds > s.Buffer.DurationSeconds {
		return fmt.Errorf("buffer.snapshotseconds must be between 0 and buffer.durationseconds")
	}
	return nil
}

func validateTriggerSettings(s *Settings) error {
	t := &s.Trigger
	if t.Sensitivity < 0 || t.Sensitivity > 1 {
		return fmt.Errorf("trigger.sensitivity must be between 0 and 1, got %v", t.Sensitivity)
	}
	if t.WindowMillis < s.Audio.FrameMillis {
		return fmt.Errorf("trigger.windowmillis must be at least one frame")
	}
	if t.HopMillis <= 0 || t.HopMillis > t.WindowMillis {
		return fmt.Errorf("trigger.hopmillis must be between 1 and trigger.windowmillis")
	}
	if t.Boost.Cap < 0 || t.Boost.Cap > 1 || t.Boost.Base < 0 || t.Boost.Step < 0 {
		return fmt.Errorf("trigger.boost values must be non-negative with cap at most 1")
	}
	if !slices.Contains([]string{"rules", "yamnet"}, t.Classifier) {
		return fmt.Errorf("trigger.classifier must be rules or yamnet, got %q", t.Classifier)
	}
	if !slices.Contains([]string{"none", "whisper"}, t.Transcriber) {
		return fmt.Errorf("trigger.transcriber must be none or whisper, got %q", t.Transcriber)
	}
	for _, name := range t.Watched {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("trigger.watched contains an empty name")
		}
	}
	return nil
}

func validateLearningSettings(s *Settings) error {
	l := &s.Learning
	if l.IntervalSeconds < 1 {
		return fmt.Errorf("learning.intervalseconds must be at least 1")
	}
	if l.RecentLimit < 1 || l.CommonWords < 1 || l.CorpusLimit < 1 || l.InboxSize < 1 {
		return fmt.Errorf("learning limits must be positive")
	}
	return nil
}

func validateHealthSettings(s *Settings) error {
	h := &s.Health
	if h.IntervalSeconds < 1 {
		return fmt.Errorf("health.intervalseconds must be at least 1")
	}
	if h.IntervalSeconds >= s.Learning.IntervalSeconds {
		return fmt.Errorf("health.intervalseconds (%d) must be shorter than learning.intervalseconds (%d)",
			h.IntervalSeconds, s.Learning.IntervalSeconds)
	}
	if h.History < 1 {
		return fmt.Errorf("health.history must be at least 1")
	}
	if h.Retention.SystemLogs < 0 || h.Retention.PerformanceMetrics < 0 || h.Retention.Detections < 0 {
		return fmt.Errorf("health.retention values must not be negative")
	}
	return nil
}

func validateOutputSettings(s *Settings) error {
	o := &s.Output
	if o.SQLite.Enabled && o.MySQL.Enabled {
		return fmt.Errorf("only one of output.sqlite and output.mysql can be enabled")
	}
	if o.SQLite.Enabled && o.SQLite.Path == "" {
		return fmt.Errorf("output.sqlite.path is required")
	}
	if o.MySQL.Enabled && (o.MySQL.Host == "" || o.MySQL.Database == "") {
		return fmt.Errorf("output.mysql.host and output.mysql.database are required")
	}
	if o.TimeoutSeconds < 1 {
		return fmt.Errorf("output.timeoutseconds must be at least 1")
	}
	if o.Queue.Size < 1 || o.Queue.Workers < 1 {
		return fmt.Errorf("output.queue size and workers must be positive")
	}
	if o.Retry.MaxRetries < 0 || o.Retry.Multiplier < 1 {
		return fmt.Errorf("output.retry needs maxretries >= 0 and multiplier >= 1")
	}
	return nil
}

func validateNotifySettings(s *Settings) error {
	if m := s.Notify.MQTT; m.Enabled {
		if m.Topic == "" {
			return fmt.Errorf("notify.mqtt.topic is required")
		}
		u, err := url.Parse(m.Broker)
		if err != nil || u.Host == "" {
			return fmt.Errorf("notify.mqtt.broker must be a URL such as tcp://host:1883")
		}
	}
	if p := s.Notify.Push; p.Enabled && len(p.URLs) == 0 {
		return fmt.Errorf("notify.push.urls needs at least one URL")
	}
	return nil
}

func validateTelemetrySettings(s *Settings) error {
	if !s.Telemetry.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.Telemetry.Listen); err != nil {
		return fmt.Errorf("telemetry.listen %q is not host:port", s.Telemetry.Listen)
	}
	return nil
}
