// Package trigger decides whether recent audio contains a watched trigger:
// a spoken wake word or an alarming sound class.
//
// A Classifier turns an analysis Window into scored Labels. The Matcher maps
// labels onto watched trigger names, boosts triggers with learned history
// through a BoostPolicy and emits a Decision when the best confidence clears
// the sensitivity threshold.
package trigger

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/errors"
)

// Label is one classifier output.
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`     // classifier that produced it
	Transcript string  `json:"transcript,omitempty"` // text a lexical label was found in
}

// Window is the unit of analysis: a contiguous run of recent audio and the
// features of the frames it spans.
type Window struct {
	Samples    []float32
	SampleRate int
	Start      time.Time
	FirstSeq   uint64
	LastSeq    uint64
	Features   []audiocore.FeatureSet
	Summary    audiocore.FeatureSet

	// Watched lists the trigger names being looked for, lowercase. Lexical
	// classifiers score them against the transcript.
	Watched []string

	// Vocabulary holds the learned common words, most frequent first.
	// Lexical classifiers use it to correct misheard transcript words.
	Vocabulary []string
}

// End returns the capture time just past the last sample.
func (w *Window) End() time.Time {
	if w.SampleRate <= 0 {
		return w.Start
	}
	return w.Start.Add(time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate))
}

// NewWindow builds a window from a ring buffer snapshot and the per-frame
// features covering it.
func NewWindow(snap *audiocore.Snapshot, features []audiocore.FeatureSet) *Window {
	return &Window{
		Samples:    snap.Samples,
		SampleRate: snap.SampleRate,
		Start:      snap.Start,
		FirstSeq:   snap.FirstSeq,
		LastSeq:    snap.LastSeq,
		Features:   features,
		Summary:    audiocore.Summarize(features),
	}
}

// Classifier scores a window. Implementations must be safe for use from one
// goroutine at a time; the matcher never calls Classify concurrently.
type Classifier interface {
	Classify(ctx context.Context, w *Window) ([]Label, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, w *Window) ([]Label, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, w *Window) ([]Label, error) {
	return f(ctx, w)
}

// Multi runs several classifiers and keeps the best confidence per label
// name. A failing member fails the whole classification.
type Multi []Classifier

// Classify merges the labels of every member, sorted by confidence.
func (m Multi) Classify(ctx context.Context, w *Window) ([]Label, error) {
	best := make(map[string]Label)
	for _, c := range m {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		labels, err := c.Classify(ctx, w)
		if err != nil {
			return nil, err
		}
		for _, l := range labels {
			key := strings.ToLower(l.Name)
			if cur, ok := best[key]; !ok || l.Confidence > cur.Confidence {
				best[key] = l
			}
		}
	}

	out := make([]Label, 0, len(best))
	for _, l := range best {
		out = append(out, l)
	}
	SortLabels(out)
	return out, nil
}

// SortLabels orders labels by descending confidence, then name.
func SortLabels(labels []Label) {
	slices.SortFunc(labels, func(a, b Label) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return strings.Compare(a.Name, b.Name)
		}
	})
}

// classificationError wraps a classifier failure.
func classificationError(err error, source string) error {
	return errors.New(err).
		Component("trigger").
		Category(errors.CategoryMatching).
		Context("classifier", source).
		Build()
}
