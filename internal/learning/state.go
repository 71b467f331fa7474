// Package learning keeps the statistics hearken learns from its own
// detections and the loop that recomputes them.
//
// The Store holds one immutable State behind an atomic pointer. The trigger
// matcher reads it without locking; the learning loop is the only writer and
// stages every change in a Txn that is committed with a single swap.
package learning

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/hearken/internal/trigger"
)

// Pattern is the learned history of one trigger.
type Pattern struct {
	Name          string    `json:"name"`
	Count         int64     `json:"count"`
	AvgConfidence float64   `json:"avgConfidence"`
	LastSeen      time.Time `json:"lastSeen"`
}

// observe folds one observation into the running average.
func (p Pattern) observe(confidence float64, at time.Time) Pattern {
	p.Count++
	p.AvgConfidence += (confidence - p.AvgConfidence) / float64(p.Count)
	if at.After(p.LastSeen) {
		p.LastSeen = at
	}
	return p
}

// WordCount is one entry of the common word list.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// TriggerStats summarizes one trigger over the recent detections.
type TriggerStats struct {
	Count          int       `json:"count"`
	AvgConfidence  float64   `json:"avgConfidence"`
	LastSeen       time.Time `json:"lastSeen"`
	FalsePositives int       `json:"falsePositives"`
}

// Watermark marks the newest observation folded into the patterns. IDs
// lists every event at exactly At, so events sharing a timestamp are
// neither skipped nor applied twice.
type Watermark struct {
	At  time.Time `json:"at"`
	IDs []string  `json:"ids,omitempty"`
}

// seen returns the IDs applied at the watermark timestamp as a set.
func (w Watermark) seen() map[string]struct{} {
	set := make(map[string]struct{}, len(w.IDs))
	for _, id := range w.IDs {
		set[id] = struct{}{}
	}
	return set
}

// State is an immutable snapshot of everything learned. Values returned by
// Store.Snapshot must not be modified.
type State struct {
	Version           uint64                  `json:"version"`
	UpdatedAt         time.Time               `json:"updatedAt"`
	Patterns          map[string]Pattern      `json:"patterns"`
	Corpus            []string                `json:"corpus"`
	CommonWords       []WordCount             `json:"commonWords"`
	Triggers          map[string]TriggerStats `json:"triggers"`
	FalsePositiveRate float64                 `json:"falsePositiveRate"`
	TotalRecords      int                     `json:"totalRecords"`
	Watermark         Watermark               `json:"watermark"`
}

var (
	_ trigger.PatternLookup    = (*State)(nil)
	_ trigger.VocabularySource = (*State)(nil)
)

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Patterns: make(map[string]Pattern),
		Triggers: make(map[string]TriggerStats),
	}
}

// LookupPattern implements trigger.PatternLookup.
func (s *State) LookupPattern(name string) (trigger.PatternStats, bool) {
	if s == nil {
		return trigger.PatternStats{}, false
	}
	p, ok := s.Patterns[normalize(name)]
	if !ok {
		return trigger.PatternStats{}, false
	}
	return trigger.PatternStats{Count: p.Count, AvgConfidence: p.AvgConfidence}, true
}

// Vocabulary implements trigger.VocabularySource with the common words.
func (s *State) Vocabulary() []string {
	if s == nil {
		return nil
	}
	words := make([]string, len(s.CommonWords))
	for i, w := range s.CommonWords {
		words[i] = w.Word
	}
	return words
}

// Names returns the pattern names in sorted order.
func (s *State) Names() []string {
	return slices.Sorted(maps.Keys(s.Patterns))
}

// clone returns a deep copy for staging changes.
func (s *State) clone() *State {
	c := *s
	c.Patterns = maps.Clone(s.Patterns)
	c.Triggers = maps.Clone(s.Triggers)
	c.Corpus = slices.Clone(s.Corpus)
	c.CommonWords = slices.Clone(s.CommonWords)
	c.Watermark.IDs = slices.Clone(s.Watermark.IDs)
	if c.Patterns == nil {
		c.Patterns = make(map[string]Pattern)
	}
	if c.Triggers == nil {
		c.Triggers = make(map[string]TriggerStats)
	}
	return &c
}

// sanitize rekeys patterns by normalized name, merging duplicates, after a
// state was loaded from storage.
func (s *State) sanitize() *State {
	c := s.clone()
	c.Patterns = make(map[string]Pattern, len(s.Patterns))
	for _, name := range slices.Sorted(maps.Keys(s.Patterns)) {
		p := s.Patterns[name]
		key := normalize(name)
		if key == "" {
			continue
		}
		if cur, ok := c.Patterns[key]; ok {
			total := cur.Count + p.Count
			if total > 0 {
				cur.AvgConfidence = (cur.AvgConfidence*float64(cur.Count) + p.AvgConfidence*float64(p.Count)) / float64(total)
			}
			cur.Count = total
			if p.LastSeen.After(cur.LastSeen) {
				cur.LastSeen = p.LastSeen
			}
			p = cur
		}
		p.Name = key
		c.Patterns[key] = p
	}
	return c
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
