package trigger

import (
	"context"
	"math"

	"github.com/tphakala/hearken/internal/audiocore"
)

// Rule scores one sound class from window features. Score returns a
// confidence in [0, 1]; zero means the class is absent.
type Rule struct {
	Name  string
	Score func(w *Window) float64
}

// RuleClassifier is a heuristic acoustic classifier over FeatureSets. It is
// deterministic and needs no model files, so it serves as the default
// backend and in tests.
type RuleClassifier struct {
	Rules []Rule
}

// NewRuleClassifier returns a classifier with the given rules, or the
// default rules when none are passed.
func NewRuleClassifier(rules ...Rule) *RuleClassifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &RuleClassifier{Rules: rules}
}

// Classify evaluates every rule and returns the non-zero scores.
func (c *RuleClassifier) Classify(ctx context.Context, w *Window) ([]Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	labels := make([]Label, 0, len(c.Rules))
	for _, r := range c.Rules {
		score := clamp01(r.Score(w))
		if score <= 0 {
			continue
		}
		labels = append(labels, Label{Name: r.Name, Confidence: score, Source: "rules"})
	}
	SortLabels(labels)
	return labels, nil
}

// DefaultRules covers the out-of-the-box sound triggers.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "gunshot", Score: scoreImpulse},
		{Name: "glass breaking", Score: scoreGlass},
		{Name: "screaming", Score: scoreScream},
		{Name: "smoke alarm", Score: scoreAlarm},
		{Name: "speech", Score: scoreSpeech},
	}
}

// scoreImpulse fires on a loud, short burst: one frame far louder than the
// window average with many peaks.
func scoreImpulse(w *Window) float64 {
	if len(w.Features) < 2 || w.Summary.Level < 0.05 {
		return 0
	}
	peak := 0.0
	for i := range w.Features {
		peak = math.Max(peak, w.Features[i].Level)
	}
	crest := peak / w.Summary.Level
	if crest < 3 || peak < 0.3 {
		return 0
	}
	return math.Min(1, peak) * math.Min(1, (crest-2)/4)
}

// scoreGlass fires on broadband high-frequency energy with many peaks.
func scoreGlass(w *Window) float64 {
	high := w.Summary.HighBandRatio()
	if high < 0.6 || w.Summary.Level < 0.05 || w.Summary.ZeroCrossingRate < 0.2 {
		return 0
	}
	return (high - 0.5) * 2 * math.Min(1, w.Summary.Level*5)
}

// scoreScream fires on sustained loud energy concentrated in the mid bands.
func scoreScream(w *Window) float64 {
	if w.Summary.Level < 0.15 || len(w.Features) == 0 {
		return 0
	}
	loud := 0
	for i := range w.Features {
		if w.Features[i].Level > 0.1 {
			loud++
		}
	}
	sustained := float64(loud) / float64(len(w.Features))
	mid := w.Summary.Bands[4] + w.Summary.Bands[5] + w.Summary.Bands[6]
	if sustained < 0.7 || mid < 0.5 {
		return 0
	}
	return sustained * mid * math.Min(1, w.Summary.Level*3)
}

// scoreAlarm fires on a narrow tonal signal in the upper bands that holds
// across the window, as smoke detectors beep near 3 kHz.
func scoreAlarm(w *Window) float64 {
	if w.Summary.Level < 0.02 || len(w.Features) == 0 {
		return 0
	}
	dominant := w.Summary.DominantBand()
	if dominant < audiocore.NumBands-3 {
		return 0
	}
	share := w.Summary.Bands[dominant]
	if share < 0.7 {
		return 0
	}
	steady := 0
	for i := range w.Features {
		if w.Features[i].DominantBand() == dominant {
			steady++
		}
	}
	return share * float64(steady) / float64(len(w.Features))
}

// scoreSpeech estimates voiced activity: moderate level, energy in the low
// and mid bands and a moderate zero crossing rate.
func scoreSpeech(w *Window) float64 {
	level := w.Summary.Level
	if level < 0.05 {
		return 0
	}
	voiced := w.Summary.Bands[2] + w.Summary.Bands[3] + w.Summary.Bands[4] + w.Summary.Bands[5]
	zcr := w.Summary.ZeroCrossingRate
	if zcr < 0.02 || zcr > 0.3 {
		return 0
	}
	return voiced * math.Min(1, level*5)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
