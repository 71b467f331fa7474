package trigger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/hearken/internal/audiocore"
)

// fixedLabels returns a classifier that always yields labels.
func fixedLabels(labels ...Label) Classifier {
	return ClassifierFunc(func(context.Context, *Window) ([]Label, error) {
		return append([]Label(nil), labels...), nil
	})
}

func window(level float64, start time.Time, seconds float64) *Window {
	n := int(seconds * 16000)
	w := &Window{Samples: make([]float32, n), SampleRate: 16000, Start: start}
	w.Summary = audiocore.FeatureSet{Level: level}
	return w
}

func TestBoostedPatternEmitsUnobservedDoesNot(t *testing.T) {
	t.Parallel()

	patterns := PatternMap{"help": {Count: 10, AvgConfidence: 0.55}}
	ctx := context.Background()

	m, err := NewMatcher(fixedLabels(Label{Name: "help", Confidence: 0.5}), []string{"help"}, 0.6)
	require.NoError(t, err)
	d, err := m.Evaluate(ctx, window(0.2, time.Now(), 1), patterns)
	require.NoError(t, err)
	assert.True(t, d.Fired)
	assert.Equal(t, "help", d.Trigger)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	assert.InDelta(t, 0.5, d.RawConfidence, 1e-9)
	assert.Equal(t, int64(10), d.Observations)

	m2, err := NewMatcher(fixedLabels(Label{Name: "fire", Confidence: 0.5}), []string{"fire"}, 0.6)
	require.NoError(t, err)
	d, err = m2.Evaluate(ctx, window(0.2, time.Now(), 1), patterns)
	require.NoError(t, err)
	assert.False(t, d.Fired)
	assert.Equal(t, "fire", d.Trigger)
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
}

func TestBoostNeverLowersConfidence(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(fixedLabels(Label{Name: "help", Confidence: 0.95}), []string{"help"}, 0.6)
	require.NoError(t, err)
	d, err := m.Evaluate(context.Background(), window(0.2, time.Now(), 1), PatternMap{"help": {Count: 1}})
	require.NoError(t, err)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
}

func TestEmitRequiresStrictlyAboveSensitivity(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(fixedLabels(Label{Name: "gunshot", Confidence: 0.6}), []string{"gunshot"}, 0.6)
	require.NoError(t, err)
	d, err := m.Evaluate(context.Background(), window(0.3, time.Now(), 1), nil)
	require.NoError(t, err)
	assert.False(t, d.Fired)

	require.NoError(t, m.SetSensitivity(0.59))
	d, err = m.Evaluate(context.Background(), window(0.3, time.Now(), 1), nil)
	require.NoError(t, err)
	assert.True(t, d.Fired)
}

func TestTieBreakByObservationsThenName(t *testing.T) {
	t.Parallel()

	labels := fixedLabels(
		Label{Name: "glass", Confidence: 0.7},
		Label{Name: "gunshot", Confidence: 0.7},
		Label{Name: "alarm", Confidence: 0.7},
	)
	ctx := context.Background()

	m, err := NewMatcher(labels, []string{"gunshot", "glass", "alarm"}, 0.5, WithBoostPolicy(NoBoost{}))
	require.NoError(t, err)

	d, err := m.Evaluate(ctx, window(0.3, time.Now(), 1), PatternMap{"gunshot": {Count: 3}, "glass": {Count: 2}})
	require.NoError(t, err)
	assert.Equal(t, "gunshot", d.Trigger)

	d, err = m.Evaluate(ctx, window(0.3, time.Now(), 1), nil)
	require.NoError(t, err)
	assert.Equal(t, "alarm", d.Trigger)
	require.Len(t, d.Candidates, 3)
	assert.Equal(t, []string{"alarm", "glass", "gunshot"},
		[]string{d.Candidates[0].Trigger, d.Candidates[1].Trigger, d.Candidates[2].Trigger})
}

func TestEvaluateIsDeterministic(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(NewRuleClassifier(), []string{"gunshot", "speech", "smoke alarm", "screaming"}, 0.4)
	require.NoError(t, err)

	w := window(0.2, time.Unix(1700000000, 0), 1)
	for i := range 10 {
		fs := audiocore.FeatureSet{Level: 0.05, ZeroCrossingRate: 0.1}
		if i == 4 {
			fs.Level = 0.9
		}
		fs.Bands[3] = 0.6
		fs.Bands[5] = 0.4
		w.Features = append(w.Features, fs)
	}
	w.Summary = audiocore.Summarize(w.Features)
	patterns := PatternMap{"speech": {Count: 2, AvgConfidence: 0.4}}

	first, err := m.Evaluate(context.Background(), w, patterns)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				d, err := m.Evaluate(context.Background(), w, patterns)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, first, d)
			}
		}()
	}
	wg.Wait()
	assert.NotEmpty(t, first.Trigger)
}

func TestLabelMatchingIsSubstringEitherWay(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(fixedLabels(
		Label{Name: "Smoke detector, smoke alarm", Confidence: 0.8},
		Label{Name: "Glass", Confidence: 0.7},
		Label{Name: "", Confidence: 0.99},
	), []string{"SMOKE", "glass breaking", "dog"}, 0.5)
	require.NoError(t, err)

	d, err := m.Evaluate(context.Background(), window(0.3, time.Now(), 1), nil)
	require.NoError(t, err)
	require.Len(t, d.Candidates, 2)
	assert.Equal(t, "smoke", d.Candidates[0].Trigger)
	assert.Equal(t, "glass breaking", d.Candidates[1].Trigger)
}

func TestActivityClassification(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ActivitySilence, ClassifyActivity(0))
	assert.Equal(t, ActivitySilence, ClassifyActivity(0.049))
	assert.Equal(t, ActivityModerate, ClassifyActivity(0.05))
	assert.Equal(t, ActivityModerate, ClassifyActivity(0.1))
	assert.Equal(t, ActivityHigh, ClassifyActivity(0.11))

	m, err := NewMatcher(fixedLabels(), []string{"help"}, 0.6)
	require.NoError(t, err)
	d, err := m.Evaluate(context.Background(), window(0.01, time.Now(), 1), nil)
	require.NoError(t, err)
	assert.Equal(t, ActivitySilence, d.Activity)
	assert.Equal(t, "Low audio activity or silence", d.Transcript)
	assert.Empty(t, d.Trigger)
	assert.False(t, d.Fired)
}

func TestSetWatchedNormalizes(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(fixedLabels(), []string{" Help ", "help", "", "Gunshot"}, 0.6)
	require.NoError(t, err)
	assert.Equal(t, []string{"help", "gunshot"}, m.Watched())

	w := m.Watched()
	w[0] = "mutated"
	assert.Equal(t, "help", m.Watched()[0])
}

func TestSetSensitivityValidates(t *testing.T) {
	t.Parallel()

	_, err := NewMatcher(fixedLabels(), nil, 1.2)
	require.Error(t, err)

	m, err := NewMatcher(fixedLabels(), nil, 0.6)
	require.NoError(t, err)
	assert.Error(t, m.SetSensitivity(-0.1))
	assert.InDelta(t, 0.6, m.Sensitivity(), 1e-9)
}

func TestProcessSelfCorrectsOnDisagreement(t *testing.T) {
	t.Parallel()

	// Short windows alternate between triggers; the wide window sees glass.
	calls := 0
	classifier := ClassifierFunc(func(_ context.Context, w *Window) ([]Label, error) {
		if len(w.Samples) > 16000 {
			return []Label{{Name: "glass", Confidence: 0.75}}, nil
		}
		calls++
		if calls == 1 {
			return []Label{{Name: "glass", Confidence: 0.8}}, nil
		}
		return []Label{{Name: "gunshot", Confidence: 0.85}}, nil
	})

	widened := 0
	widen := func(_ context.Context, w *Window, factor float64) (*Window, bool) {
		widened++
		assert.InDelta(t, 2.0, factor, 1e-9)
		return window(w.Summary.Level, w.Start.Add(-time.Second), 2), true
	}

	m, err := NewMatcher(classifier, []string{"glass", "gunshot"}, 0.6, WithSmoothing(0.3, widen))
	require.NoError(t, err)

	start := time.Unix(1700000000, 0)
	first, err := m.Process(context.Background(), window(0.3, start, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, "glass", first.Trigger)
	assert.False(t, first.Corrected)

	// Overlaps the first window by half a second and names another trigger.
	second, err := m.Process(context.Background(), window(0.3, start.Add(500*time.Millisecond), 1), nil)
	require.NoError(t, err)
	assert.True(t, second.Corrected)
	assert.Equal(t, "glass", second.Trigger)
	assert.InDelta(t, 0.75, second.Confidence, 1e-9)
	assert.Equal(t, 1, widened)
}

func TestProcessKeepsAgreeingAndDisjointDecisions(t *testing.T) {
	t.Parallel()

	confs := []float64{0.7, 0.8, 0.2, 0.95}
	i := 0
	classifier := ClassifierFunc(func(context.Context, *Window) ([]Label, error) {
		c := confs[i%len(confs)]
		i++
		return []Label{{Name: "help", Confidence: c}}, nil
	})
	widened := 0
	widen := func(_ context.Context, w *Window, _ float64) (*Window, bool) {
		widened++
		return w, true
	}

	m, err := NewMatcher(classifier, []string{"help"}, 0.6, WithSmoothing(0.3, widen))
	require.NoError(t, err)
	start := time.Unix(1700000000, 0)
	ctx := context.Background()

	_, err = m.Process(ctx, window(0.3, start, 1), nil) // 0.7
	require.NoError(t, err)
	d, err := m.Process(ctx, window(0.3, start.Add(500*time.Millisecond), 1), nil) // 0.8, gap 0.1
	require.NoError(t, err)
	assert.False(t, d.Corrected)
	_, err = m.Process(ctx, window(0.3, start.Add(time.Second), 1), nil) // 0.2, not fired
	require.NoError(t, err)
	// Disjoint from the previous window: no re-check even with a large gap.
	d, err = m.Process(ctx, window(0.3, start.Add(5*time.Second), 1), nil) // 0.95
	require.NoError(t, err)
	assert.False(t, d.Corrected)
	assert.Zero(t, widened)

	m.ResetHistory()
}

func TestClassifierErrorPropagates(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(ClassifierFunc(func(context.Context, *Window) ([]Label, error) {
		return nil, assert.AnError
	}), []string{"help"}, 0.6)
	require.NoError(t, err)

	_, err = m.Evaluate(context.Background(), window(0.3, time.Now(), 1), nil)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestIsActivityDescription(t *testing.T) {
	t.Parallel()

	assert.True(t, IsActivityDescription(ActivityModerate.Description()))
	assert.False(t, IsActivityDescription("help me"))
}
