// model.go defines the tables hearken persists
package datastore

import (
	"time"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/learning"
	"github.com/tphakala/hearken/internal/trigger"
)

// System log levels and categories written by hearken itself.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"

	CategoryStartup     = "system_startup"
	CategoryShutdown    = "system_shutdown"
	CategoryDetection   = "detection"
	CategoryHealth      = "health"
	CategoryLearning    = "learning"
	CategoryRemediation = "remediation"
)

// Detection is one persisted trigger detection with its audio clip.
type Detection struct {
	ID            uint   `gorm:"primaryKey"`
	EventID       string `gorm:"size:36;uniqueIndex;not null"`
	Trigger       string `gorm:"size:128;index:idx_detections_trigger_time"`
	Confidence    float64
	RawConfidence float64
	Activity      string `gorm:"size:16"`
	Level         float64
	Transcript    string `gorm:"type:text"`
	Corrected     bool
	Labels        []trigger.Label      `gorm:"type:text;serializer:json"`
	Features      audiocore.FeatureSet `gorm:"type:text;serializer:json"`
	Audio         []byte
	AudioSeconds  float64
	FalsePositive bool      `gorm:"index"`
	Timestamp     time.Time `gorm:"index;index:idx_detections_trigger_time"`
	CreatedAt     time.Time
}

// LearningState holds the serialized learning state in a single row.
type LearningState struct {
	ID        uint `gorm:"primaryKey;autoIncrement:false"`
	Version   uint64
	Data      string `gorm:"type:longtext"`
	UpdatedAt time.Time
}

// SystemLog is an operational event such as startup, shutdown or a
// remediation outcome.
type SystemLog struct {
	ID        uint           `gorm:"primaryKey"`
	Level     string         `gorm:"size:16;index"`
	Category  string         `gorm:"size:64;index"`
	Message   string         `gorm:"type:text"`
	Data      map[string]any `gorm:"type:text;serializer:json"`
	CreatedAt time.Time      `gorm:"index"`
}

// LearningSession records one completed learning cycle.
type LearningSession struct {
	ID               uint      `gorm:"primaryKey"`
	StartedAt        time.Time `gorm:"index"`
	EndedAt          time.Time
	Processed        int
	PatternsLearned  int
	ImprovementScore float64
}

// PerformanceMetric is one health cycle's resource and quality sample.
type PerformanceMetric struct {
	ID                uint      `gorm:"primaryKey"`
	RecordedAt        time.Time `gorm:"index"`
	ProcessingMs      float64   // health cycle duration
	CPUPercent        float64
	MemoryPercent     float64
	DiskPercent       float64
	BufferUtilization float64
	FalsePositiveRate float64
	SelfFixRate       float64 // successful remediations over attempted
}

// RetentionLimits caps rows kept per table; zero keeps everything.
type RetentionLimits struct {
	SystemLogs         int
	PerformanceMetrics int
	Detections         int
}

// PruneResult counts rows removed by Prune.
type PruneResult struct {
	SystemLogs         int64
	PerformanceMetrics int64
	Detections         int64
}

// Total returns the number of rows removed.
func (p PruneResult) Total() int64 {
	return p.SystemLogs + p.PerformanceMetrics + p.Detections
}

// Counts reports table sizes.
type Counts struct {
	Detections         int64
	SystemLogs         int64
	LearningSessions   int64
	PerformanceMetrics int64
}

func detectionFromRecord(r *detection.Record, audio []byte) *Detection {
	return &Detection{
		EventID:       r.EventID,
		Trigger:       r.Trigger,
		Confidence:    r.Confidence,
		RawConfidence: r.RawConfidence,
		Activity:      string(r.Activity),
		Level:         r.Level,
		Transcript:    r.Transcript,
		Corrected:     r.Corrected,
		Labels:        r.Labels,
		Features:      r.Features,
		Audio:         audio,
		AudioSeconds:  r.AudioSeconds,
		FalsePositive: r.FalsePositive,
		Timestamp:     r.Timestamp,
	}
}

// Record converts the row to the domain view without audio.
func (d *Detection) Record() detection.Record {
	return detection.Record{
		ID:            d.ID,
		EventID:       d.EventID,
		Trigger:       d.Trigger,
		Confidence:    d.Confidence,
		RawConfidence: d.RawConfidence,
		Activity:      trigger.Activity(d.Activity),
		Level:         d.Level,
		Transcript:    d.Transcript,
		Corrected:     d.Corrected,
		Labels:        d.Labels,
		Features:      d.Features,
		AudioSeconds:  d.AudioSeconds,
		Timestamp:     d.Timestamp,
		FalsePositive: d.FalsePositive,
	}
}

func sessionFromLearning(s *learning.Session) *LearningSession {
	return &LearningSession{
		StartedAt:        s.Start,
		EndedAt:          s.End,
		Processed:        s.Processed,
		PatternsLearned:  s.PatternsLearned,
		ImprovementScore: s.ImprovementScore,
	}
}
