package detection

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/trigger"
)

func TestNewEventAndRecord(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := &trigger.Decision{
		Trigger:       "help",
		Confidence:    0.9,
		RawConfidence: 0.5,
		Observations:  10,
		Activity:      trigger.ActivityHigh,
		Level:         0.2,
		Transcript:    "help me",
		Fired:         true,
		Labels:        []trigger.Label{{Name: "help", Confidence: 0.5}},
	}
	snap := audiocore.Snapshot{Samples: make([]float32, 32000), SampleRate: 16000, Start: at.Add(-2 * time.Second)}

	e := NewEvent(d, audiocore.FeatureSet{Level: 0.2}, snap, at)
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, "help", e.Trigger)
	assert.Equal(t, int64(10), e.Observations)

	r := NewRecord(e)
	assert.Equal(t, e.ID.String(), r.EventID)
	assert.InDelta(t, 2.0, r.AudioSeconds, 1e-9)
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
	assert.Equal(t, trigger.ActivityHigh, r.Activity)
	assert.False(t, r.FalsePositive)

	assert.Equal(t, e.Observation(), r.Observation())
	assert.Equal(t, e.Observation(), NewRecord(e).Observation(), "usable on a returned record")

	other := NewEvent(d, audiocore.FeatureSet{}, snap, at)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestObservationAfterWatermark(t *testing.T) {
	t.Parallel()

	mark := time.Unix(1000, 0)
	seen := map[string]struct{}{"a": {}}

	tests := []struct {
		name string
		obs  Observation
		want bool
	}{
		{"later", Observation{EventID: "x", Timestamp: mark.Add(time.Millisecond)}, true},
		{"earlier", Observation{EventID: "y", Timestamp: mark.Add(-time.Millisecond)}, false},
		{"same time already applied", Observation{EventID: "a", Timestamp: mark}, false},
		{"same time new id", Observation{EventID: "b", Timestamp: mark}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.obs.After(mark, seen))
		})
	}
}
