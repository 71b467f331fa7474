// Package notify delivers detection alerts to MQTT and to push services
// through shoutrrr. Both outlets are event bus consumers.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/hearken/internal/detection"
)

// Payload is the JSON document published for a detection.
type Payload struct {
	EventID       string    `json:"eventId"`
	Node          string    `json:"node,omitempty"`
	Trigger       string    `json:"trigger"`
	Confidence    float64   `json:"confidence"`
	RawConfidence float64   `json:"rawConfidence"`
	Activity      string    `json:"activity"`
	Level         float64   `json:"level"`
	Transcript    string    `json:"transcript,omitempty"`
	Corrected     bool      `json:"corrected,omitempty"`
	AudioSeconds  float64   `json:"audioSeconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewPayload builds the payload for e.
func NewPayload(node string, e *detection.Event) Payload {
	return Payload{
		EventID:       e.ID.String(),
		Node:          node,
		Trigger:       e.Trigger,
		Confidence:    e.Confidence,
		RawConfidence: e.RawConfidence,
		Activity:      string(e.Activity),
		Level:         e.Level,
		Transcript:    e.Transcript,
		Corrected:     e.Corrected,
		AudioSeconds:  e.Audio.Duration().Seconds(),
		Timestamp:     e.Timestamp,
	}
}

// Title returns the push notification title for e.
func Title(node string, e *detection.Event) string {
	if node == "" {
		return fmt.Sprintf("Detected %s", e.Trigger)
	}
	return fmt.Sprintf("%s: detected %s", node, e.Trigger)
}

// Message returns the push notification body for e.
func Message(e *detection.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s detected with %.0f%% confidence at %s",
		e.Trigger, e.Confidence*100, e.Timestamp.Format(time.DateTime))
	if e.Transcript != "" {
		fmt.Fprintf(&b, "\nHeard: %q", e.Transcript)
	}
	return b.String()
}
