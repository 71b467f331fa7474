// Package detection holds the detection event produced by the trigger
// matcher and the record the datastore persists for it.
package detection

import (
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/trigger"
)

// Event is one emitted detection. Events are immutable once published.
type Event struct {
	ID            uuid.UUID
	Trigger       string
	Confidence    float64 // after boosting
	RawConfidence float64 // classifier output
	Observations  int64   // prior observations of the trigger at decision time
	Activity      trigger.Activity
	Level         float64
	Transcript    string
	Corrected     bool // decided on a widened window
	Labels        []trigger.Label
	Features      audiocore.FeatureSet
	Audio         audiocore.Snapshot // recent audio attached to the event
	Timestamp     time.Time
}

// NewEvent builds an event from a fired decision.
func NewEvent(d *trigger.Decision, features audiocore.FeatureSet, audio audiocore.Snapshot, at time.Time) *Event {
	return &Event{
		ID:            uuid.New(),
		Trigger:       d.Trigger,
		Confidence:    d.Confidence,
		RawConfidence: d.RawConfidence,
		Observations:  d.Observations,
		Activity:      d.Activity,
		Level:         d.Level,
		Transcript:    d.Transcript,
		Corrected:     d.Corrected,
		Labels:        d.Labels,
		Features:      features,
		Audio:         audio,
		Timestamp:     at,
	}
}

// Observation returns the fields the learning loop consumes.
func (e *Event) Observation() Observation {
	return Observation{
		EventID:    e.ID.String(),
		Trigger:    e.Trigger,
		Confidence: e.Confidence,
		Transcript: e.Transcript,
		Timestamp:  e.Timestamp,
	}
}

// Record is the persisted view of an Event. Audio is stored as WAV by the
// datastore and is not loaded back by queries.
type Record struct {
	ID            uint // datastore primary key
	EventID       string
	Trigger       string
	Confidence    float64
	RawConfidence float64
	Activity      trigger.Activity
	Level         float64
	Transcript    string
	Corrected     bool
	Labels        []trigger.Label
	Features      audiocore.FeatureSet
	AudioSeconds  float64
	Timestamp     time.Time
	FalsePositive bool
}

// NewRecord converts an event for persistence.
func NewRecord(e *Event) Record {
	return Record{
		EventID:       e.ID.String(),
		Trigger:       e.Trigger,
		Confidence:    e.Confidence,
		RawConfidence: e.RawConfidence,
		Activity:      e.Activity,
		Level:         e.Level,
		Transcript:    e.Transcript,
		Corrected:     e.Corrected,
		Labels:        e.Labels,
		Features:      e.Features,
		AudioSeconds:  e.Audio.Duration().Seconds(),
		Timestamp:     e.Timestamp,
	}
}

// Observation returns the fields the learning loop consumes.
func (r Record) Observation() Observation {
	return Observation{
		EventID:       r.EventID,
		Trigger:       r.Trigger,
		Confidence:    r.Confidence,
		Transcript:    r.Transcript,
		Timestamp:     r.Timestamp,
		FalsePositive: r.FalsePositive,
	}
}

// Observation is a detection as seen by the learning loop, whether it came
// from the live inbox or from the persisted history.
type Observation struct {
	EventID       string
	Trigger       string
	Confidence    float64
	Transcript    string
	Timestamp     time.Time
	FalsePositive bool
}

// After reports whether o is strictly past the watermark. Observations at
// the watermark timestamp are past it unless their ID was already applied.
func (o *Observation) After(at time.Time, seen map[string]struct{}) bool {
	if o.Timestamp.After(at) {
		return true
	}
	if o.Timestamp.Before(at) {
		return false
	}
	_, ok := seen[o.EventID]
	return !ok
}
