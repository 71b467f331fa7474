// Package conf loads, validates and saves hearken settings.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings holds the complete application configuration
type Settings struct {
	Debug bool // true to enable debug logging

	Main struct {
		Name string               // node name, included in notifications
		Log  logger.LoggingConfig // console and file logging
	}

	Audio     AudioSettings
	Buffer    BufferSettings
	Trigger   TriggerSettings
	Learning  LearningSettings
	Health    HealthSettings
	Output    OutputSettings
	Notify    NotifySettings
	Telemetry TelemetrySettings
	Sentry    SentrySettings
}

// AudioSettings configures the capture device
type AudioSettings struct {
	Source      string            // capture device name or ID, "sysdefault" or "synthetic"
	Backend     string            // miniaudio backend override, empty picks one per OS
	SampleRate  int               // Hz, mono
	FrameMillis int               // length of one frame
	Gain        float64           // dB applied to captured samples
	Synthetic   SyntheticSettings // generator used when Source is "synthetic"
}

// SyntheticSettings configures the generator source
type SyntheticSettings struct {
	Signal    string  // silence, tone or noise
	Amplitude float64 // 0-1
	Frequency float64 // Hz, tone only
}

// BufferSettings configures the rolling audio window
type BufferSettings struct {
	DurationSeconds int // rolling window length, re-buffers on change
	SnapshotSeconds int // audio attached to each detection
}

// TriggerSettings configures trigger detection
type TriggerSettings struct {
	Sensitivity     float64  // emit threshold, 0-1
	Watched         []string // wake words and sound classes
	WindowMillis    int      // analysis window
	HopMillis       int      // analysis cadence
	CooldownSeconds int      // suppress repeats of the same trigger
	SmoothingGap    float64  // confidence gap that forces a wider re-check
	Classifier      string   // rules or yamnet
	Transcriber     string   // none or whisper
	Boost           BoostSettings
	Lexical         LexicalSettings
	YAMNet          YAMNetSettings
	Whisper         WhisperSettings
}

// BoostSettings parameterizes the default linear boost policy
type BoostSettings struct {
	Base float64
	Step float64
	Cap  float64
}

// LexicalSettings configures wake word matching on transcripts
type LexicalSettings struct {
	PhoneticThreshold float64
	FuzzyThreshold    float64
}

// YAMNetSettings configures the TFLite sound classifier
type YAMNetSettings struct {
	ModelPath string
	LabelPath string
	Threads   int // 0 picks from CPU topology
}

// WhisperSettings configures the whisper.cpp transcriber
type WhisperSettings struct {
	ModelPath string
	Language  string
}

// LearningSettings configures the learning loop
type LearningSettings struct {
	IntervalSeconds int
	RecentLimit     int // persisted detections reviewed per cycle
	CommonWords     int // size of the common word list
	CorpusLimit     int // transcripts retained in the corpus
	InboxSize       int
}

// HealthSettings configures the health monitor
type HealthSettings struct {
	IntervalSeconds int
	AutoFix         bool
	History         int    // reports kept for trend comparison
	ErrorThreshold  int    // extraction/matching errors per cycle before flagging
	CPUThreshold    float64
	MemoryThreshold float64
	DiskThreshold   float64
	DiskPath        string
	Retention       RetentionSettings
}

// RetentionSettings caps persisted rows; zero disables the cap
type RetentionSettings struct {
	SystemLogs         int
	PerformanceMetrics int
	Detections         int
}

// OutputSettings configures persistence
type OutputSettings struct {
	TimeoutSeconds      int // bound on every store call
	ConnectAttempts     int
	ConnectDelaySeconds int
	LogRate             float64 // system log writes per second
	SQLite              SQLiteSettings
	MySQL               MySQLSettings
	Queue               QueueSettings
	Retry               RetrySettings
}

// SQLiteSettings configures the sqlite store
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings configures the mysql store
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// QueueSettings configures the persistence hand-off queue
type QueueSettings struct {
	Size    int
	Workers int
}

// RetrySettings configures backoff for persistence writes
type RetrySettings struct {
	MaxRetries     int
	InitialDelayMs int
	MaxDelayMs     int
	Multiplier     float64
}

// NotifySettings configures detection alert outlets
type NotifySettings struct {
	MQTT MQTTSettings
	Push PushSettings
}

// MQTTSettings configures the MQTT publisher
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	Retain   bool
}

// PushSettings configures shoutrrr push notifications
type PushSettings struct {
	Enabled        bool
	URLs           []string
	TimeoutSeconds int
	MinConfidence  float64
}

// TelemetrySettings configures the Prometheus endpoint
type TelemetrySettings struct {
	Enabled bool
	Listen  string
}

// SentrySettings configures error reporting
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// FrameSize returns the number of samples in one frame
func (a *AudioSettings) FrameSize() int {
	return a.SampleRate * a.FrameMillis / 1000
}

// Timeout returns the bound applied to every store call
func (o *OutputSettings) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// LearningInterval returns the learning cadence
func (s *Settings) LearningInterval() time.Duration {
	return time.Duration(s.Learning.IntervalSeconds) * time.Second
}

// HealthInterval returns the health cadence
func (s *Settings) HealthInterval() time.Duration {
	return time.Duration(s.Health.IntervalSeconds) * time.Second
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file and HEARKEN_* environment variables.
// An empty configFile searches the default config paths and writes the
// embedded default config when none exists.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("HEARKEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("operation", "read-config").
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it
func createDefaultConfig(dir string) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// GetSettings returns the settings loaded last
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// ConfigFileUsed returns the file the last Load read. Before any Load it
// falls back to FindConfigFile.
func ConfigFileUsed() (string, error) {
	if path := viper.ConfigFileUsed(); path != "" {
		return path, nil
	}
	return FindConfigFile()
}

// SaveYAMLConfig writes settings to configPath atomically. Keys are the
// lowercased field names Load reads back; comments are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}
	return nil
}
