package trigger

import "math"

// PatternStats is the learned history of one trigger.
type PatternStats struct {
	Count         int64
	AvgConfidence float64
}

// PatternLookup gives the matcher read access to learned patterns. The
// learning store's immutable State implements it.
type PatternLookup interface {
	LookupPattern(name string) (PatternStats, bool)
}

// VocabularySource is implemented by pattern lookups that also carry the
// learned vocabulary, the most frequent transcript words, most frequent
// first.
type VocabularySource interface {
	Vocabulary() []string
}

// BoostPolicy turns a raw classifier confidence into the confidence the
// matcher compares against the sensitivity threshold. It is only consulted
// for triggers with at least one prior observation.
type BoostPolicy interface {
	Boost(raw float64, stats PatternStats) float64
}

// LinearBoost raises confidence to Base + Count×Step, capped at Cap. It never
// lowers a raw confidence that is already higher.
type LinearBoost struct {
	Base float64
	Step float64
	Cap  float64
}

// DefaultBoost is 0.6 + 0.05 per observation, capped at 0.9.
var DefaultBoost = LinearBoost{Base: 0.6, Step: 0.05, Cap: 0.9}

// Boost implements BoostPolicy.
func (b LinearBoost) Boost(raw float64, stats PatternStats) float64 {
	boosted := math.Min(b.Cap, b.Base+float64(stats.Count)*b.Step)
	return math.Max(raw, boosted)
}

// NoBoost leaves confidences untouched.
type NoBoost struct{}

// Boost implements BoostPolicy.
func (NoBoost) Boost(raw float64, _ PatternStats) float64 { return raw }

// PatternMap is a PatternLookup over a plain map, keyed by lowercase name.
type PatternMap map[string]PatternStats

// LookupPattern implements PatternLookup.
func (m PatternMap) LookupPattern(name string) (PatternStats, bool) {
	s, ok := m[name]
	return s, ok
}
