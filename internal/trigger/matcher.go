package trigger

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tphakala/hearken/internal/errors"
)

// Activity is the coarse loudness class of a window.
type Activity string

const (
	ActivitySilence  Activity = "silence"
	ActivityModerate Activity = "moderate"
	ActivityHigh     Activity = "high"
)

// Level thresholds separating the activity classes.
const (
	SilenceLevel = 0.05
	HighLevel    = 0.1
)

// ClassifyActivity maps a mean absolute level to an activity class:
// silence below 0.05, high above 0.1, moderate in between.
func ClassifyActivity(level float64) Activity {
	switch {
	case level < SilenceLevel:
		return ActivitySilence
	case level > HighLevel:
		return ActivityHigh
	default:
		return ActivityModerate
	}
}

// Description is the fallback transcript used when no classifier produced
// text for a window.
func (a Activity) Description() string {
	switch a {
	case ActivityHigh:
		return "Audio detected with high volume - possible speech or important sound"
	case ActivityModerate:
		return "Moderate audio activity detected"
	default:
		return "Low audio activity or silence"
	}
}

// IsActivityDescription reports whether text is one of the fallback
// activity descriptions rather than a real transcript.
func IsActivityDescription(text string) bool {
	for _, a := range []Activity{ActivitySilence, ActivityModerate, ActivityHigh} {
		if text == a.Description() {
			return true
		}
	}
	return false
}

// Candidate is one watched trigger supported by at least one label.
type Candidate struct {
	Trigger       string
	Confidence    float64
	RawConfidence float64
	Observations  int64
	Label         Label
}

// Decision is the matcher's verdict for one window.
type Decision struct {
	Trigger       string // best candidate, empty when no watched trigger matched
	Confidence    float64
	RawConfidence float64
	Observations  int64
	Activity      Activity
	Level         float64
	Fired         bool // Confidence exceeded the sensitivity threshold
	Corrected     bool // result of a wider re-evaluation
	Transcript    string
	Labels        []Label
	Candidates    []Candidate
}

// Widener supplies a wider window covering w, used to re-check a decision
// that disagrees with the previous one. It returns false when no wider
// audio is available.
type Widener func(ctx context.Context, w *Window, factor float64) (*Window, bool)

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithBoostPolicy replaces the default linear boost.
func WithBoostPolicy(p BoostPolicy) MatcherOption {
	return func(m *Matcher) { m.boost = p }
}

// WithSmoothing enables self-correction: an emitted decision that differs
// in trigger, or by at least gap in confidence, from the previous
// overlapping window's candidate is re-evaluated once on a window widened
// by widen.
func WithSmoothing(gap float64, widen Widener) MatcherOption {
	return func(m *Matcher) {
		m.smoothingGap = gap
		m.widen = widen
	}
}

// Matcher maps classifier labels to watched triggers. Evaluate is safe for
// concurrent use; Process keeps the previous decision and must be called
// from one goroutine.
type Matcher struct {
	classifier   Classifier
	boost        BoostPolicy
	smoothingGap float64
	widen        Widener

	watched     atomic.Pointer[[]string]
	sensitivity atomic.Uint64 // math.Float64bits

	mu      sync.Mutex
	prev    Decision
	prevWin *Window
	hasPrev bool
}

// NewMatcher creates a matcher watching the given names.
func NewMatcher(classifier Classifier, watched []string, sensitivity float64, opts ...MatcherOption) (*Matcher, error) {
	m := &Matcher{classifier: classifier, boost: DefaultBoost, smoothingGap: 0.3}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.SetSensitivity(sensitivity); err != nil {
		return nil, err
	}
	m.SetWatched(watched)
	return m, nil
}

// SetWatched replaces the watched trigger names. Names are trimmed,
// lowercased and deduplicated; blanks are dropped.
func (m *Matcher) SetWatched(names []string) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	m.watched.Store(&out)
}

// Watched returns a copy of the watched names.
func (m *Matcher) Watched() []string {
	return slices.Clone(*m.watched.Load())
}

// SetSensitivity sets the emit threshold, which must lie in [0, 1].
func (m *Matcher) SetSensitivity(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return errors.Newf("sensitivity %v outside [0, 1]", v).
			Component("trigger").
			Category(errors.CategoryValidation).
			Build()
	}
	m.sensitivity.Store(math.Float64bits(v))
	return nil
}

// Sensitivity returns the emit threshold.
func (m *Matcher) Sensitivity() float64 {
	return math.Float64frombits(m.sensitivity.Load())
}

// Evaluate classifies w and selects the best watched trigger. Given the
// same window, patterns and settings it always returns the same decision.
func (m *Matcher) Evaluate(ctx context.Context, w *Window, patterns PatternLookup) (Decision, error) {
	watched := *m.watched.Load()
	win := *w
	win.Watched = watched
	if v, ok := patterns.(VocabularySource); ok {
		win.Vocabulary = v.Vocabulary()
	}

	d := Decision{
		Level:    w.Summary.Level,
		Activity: ClassifyActivity(w.Summary.Level),
	}

	labels, err := m.classifier.Classify(ctx, &win)
	if err != nil {
		return d, classificationError(err, "matcher")
	}
	d.Labels = labels

	for _, name := range watched {
		label, ok := bestLabelFor(name, labels)
		if !ok {
			continue
		}
		c := Candidate{Trigger: name, RawConfidence: label.Confidence, Confidence: label.Confidence, Label: label}
		if patterns != nil {
			if stats, ok := patterns.LookupPattern(name); ok && stats.Count > 0 {
				c.Observations = stats.Count
				c.Confidence = clamp01(m.boost.Boost(label.Confidence, stats))
			}
		}
		d.Candidates = append(d.Candidates, c)
	}

	slices.SortFunc(d.Candidates, compareCandidates)

	if len(d.Candidates) > 0 {
		best := d.Candidates[0]
		d.Trigger = best.Trigger
		d.Confidence = best.Confidence
		d.RawConfidence = best.RawConfidence
		d.Observations = best.Observations
		d.Transcript = best.Label.Transcript
		d.Fired = best.Confidence > m.Sensitivity()
	}
	if d.Transcript == "" {
		d.Transcript = d.Activity.Description()
	}
	return d, nil
}

// Process evaluates w like Evaluate and applies self-correction against
// the previous window. Windows must be passed in capture order.
func (m *Matcher) Process(ctx context.Context, w *Window, patterns PatternLookup) (Decision, error) {
	d, err := m.Evaluate(ctx, w, patterns)
	if err != nil {
		return d, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if d.Fired && m.disagrees(w, d) {
		if wide, ok := m.widen(ctx, w, 2); ok {
			wd, werr := m.Evaluate(ctx, wide, patterns)
			if werr != nil {
				return d, werr
			}
			wd.Corrected = true
			d = wd
		}
	}

	m.prev = d
	m.prevWin = w
	m.hasPrev = true
	return d, nil
}

// ResetHistory forgets the previous decision, for example after the
// buffer was resized.
func (m *Matcher) ResetHistory() {
	m.mu.Lock()
	m.hasPrev = false
	m.prevWin = nil
	m.prev = Decision{}
	m.mu.Unlock()
}

// disagrees reports whether d conflicts with the previous decision over
// overlapping audio. A previous window without any candidate is not a
// conflict, so onsets after silence are emitted as-is.
func (m *Matcher) disagrees(w *Window, d Decision) bool {
	if m.widen == nil || !m.hasPrev || m.prev.Trigger == "" {
		return false
	}
	if !m.prevWin.End().After(w.Start) {
		return false
	}
	return m.prev.Trigger != d.Trigger || math.Abs(m.prev.Confidence-d.Confidence) >= m.smoothingGap
}

// bestLabelFor returns the highest confidence label matching name. Names
// match case-insensitively when either contains the other.
func bestLabelFor(name string, labels []Label) (Label, bool) {
	var best Label
	found := false
	for _, l := range labels {
		ln := strings.ToLower(strings.TrimSpace(l.Name))
		if ln == "" || l.Confidence <= 0 {
			continue
		}
		if !strings.Contains(ln, name) && !strings.Contains(name, ln) {
			continue
		}
		if !found || l.Confidence > best.Confidence {
			best = l
			found = true
		}
	}
	return best, found
}

// compareCandidates orders by confidence, then observation count, then name.
func compareCandidates(a, b Candidate) int {
	if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Observations, a.Observations); c != 0 {
		return c
	}
	return strings.Compare(a.Trigger, b.Trigger)
}
