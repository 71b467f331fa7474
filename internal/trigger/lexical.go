package trigger

import (
	"context"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// LexicalMatcher finds wake words in a transcript. An exact token (or
// token sequence) match scores 1. Otherwise a term whose Double Metaphone
// codes overlap a transcript token scores its Jaro-Winkler similarity when
// that reaches the phonetic threshold; terms without phonetic overlap need
// the higher fuzzy threshold. The matcher is read-only and safe for
// concurrent use.
type LexicalMatcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewLexicalMatcher returns a matcher; zero thresholds select the defaults.
func NewLexicalMatcher(phonetic, fuzzy float64) *LexicalMatcher {
	if phonetic <= 0 {
		phonetic = defaultPhoneticThreshold
	}
	if fuzzy <= 0 {
		fuzzy = defaultFuzzyThreshold
	}
	return &LexicalMatcher{phoneticThreshold: phonetic, fuzzyThreshold: fuzzy}
}

// Tokenize lowercases text and splits it into letter/digit runs.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Match scores every term against the transcript and returns one label per
// term that matched.
func (m *LexicalMatcher) Match(transcript string, terms []string) []Label {
	return m.MatchVocabulary(transcript, terms, nil)
}

// MatchVocabulary is Match with a learned vocabulary. A transcript token
// that is neither a term word nor a vocabulary word is first replaced by
// the closest vocabulary word passing the phonetic rule. Spans made only of
// vocabulary words then score exact matches only.
func (m *LexicalMatcher) MatchVocabulary(transcript string, terms, vocabulary []string) []Label {
	tokens := Tokenize(transcript)
	if len(tokens) == 0 {
		return nil
	}

	termTokens := make([][]string, 0, len(terms))
	termWords := make(map[string]struct{})
	for _, term := range terms {
		tt := Tokenize(term)
		if len(tt) == 0 {
			continue
		}
		termTokens = append(termTokens, tt)
		for _, w := range tt {
			termWords[w] = struct{}{}
		}
	}

	vocab := newVocabulary(vocabulary)
	tokens = m.correct(tokens, vocab, termWords)

	var labels []Label
	for _, tt := range termTokens {
		score := m.score(tokens, tt, vocab.known)
		if score <= 0 {
			continue
		}
		labels = append(labels, Label{
			Name:       strings.Join(tt, " "),
			Confidence: score,
			Source:     "lexical",
			Transcript: transcript,
		})
	}
	SortLabels(labels)
	return labels
}

// vocabulary is a learned word list with precomputed phonetic codes.
type vocabulary struct {
	words []string
	codes []map[string]struct{}
	known map[string]struct{}
}

// newVocabulary keeps the single-token entries of words in order.
func newVocabulary(words []string) vocabulary {
	v := vocabulary{known: make(map[string]struct{}, len(words))}
	for _, w := range words {
		tt := Tokenize(w)
		if len(tt) != 1 {
			continue
		}
		if _, dup := v.known[tt[0]]; dup {
			continue
		}
		v.known[tt[0]] = struct{}{}
		v.words = append(v.words, tt[0])
		v.codes = append(v.codes, codesFor(tt))
	}
	return v
}

// correct replaces misheard tokens in place with the closest vocabulary
// word. Earlier vocabulary words win ties.
func (m *LexicalMatcher) correct(tokens []string, vocab vocabulary, keep map[string]struct{}) []string {
	if len(vocab.words) == 0 {
		return tokens
	}
	for i, tok := range tokens {
		if _, ok := vocab.known[tok]; ok {
			continue
		}
		if _, ok := keep[tok]; ok {
			continue
		}
		codes := codesFor(tokens[i : i+1])
		best, bestScore := "", 0.0
		for j, word := range vocab.words {
			if !overlaps(codes, vocab.codes[j]) {
				continue
			}
			if jw := matchr.JaroWinkler(tok, word, false); jw >= m.phoneticThreshold && jw > bestScore {
				best, bestScore = word, jw
			}
		}
		if best != "" {
			tokens[i] = best
		}
	}
	return tokens
}

func (m *LexicalMatcher) score(tokens, term []string, known map[string]struct{}) float64 {
	if containsSequence(tokens, term) {
		return 1
	}

	// Slide a window of the term's length over the transcript and keep the
	// best scoring alignment.
	termCodes := codesFor(term)
	termJoined := strings.Join(term, "")
	best := 0.0
	for i := 0; i+len(term) <= len(tokens); i++ {
		span := tokens[i : i+len(term)]
		if allKnown(span, known) {
			continue
		}
		jw := matchr.JaroWinkler(strings.Join(span, ""), termJoined, false)

		threshold := m.fuzzyThreshold
		if overlaps(codesFor(span), termCodes) {
			threshold = m.phoneticThreshold
		}
		if jw >= threshold && jw > best {
			best = jw
		}
	}
	return best
}

func allKnown(span []string, known map[string]struct{}) bool {
	if len(known) == 0 {
		return false
	}
	for _, t := range span {
		if _, ok := known[t]; !ok {
			return false
		}
	}
	return true
}

func containsSequence(tokens, seq []string) bool {
	for i := 0; i+len(seq) <= len(tokens); i++ {
		match := true
		for j := range seq {
			if tokens[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// codesFor returns the Double Metaphone codes of the tokens. Empty codes
// are skipped.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// Transcriber converts audio to text. The whisper package provides the
// production implementation.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// TranscriptClassifier transcribes a window and scores the watched names
// lexically. Windows below minLevel are not transcribed.
type TranscriptClassifier struct {
	transcriber Transcriber
	lexical     *LexicalMatcher
	minLevel    float64
}

// NewTranscriptClassifier wires a transcriber to a lexical matcher.
func NewTranscriptClassifier(t Transcriber, lexical *LexicalMatcher) *TranscriptClassifier {
	if lexical == nil {
		lexical = NewLexicalMatcher(0, 0)
	}
	return &TranscriptClassifier{transcriber: t, lexical: lexical, minLevel: SilenceLevel}
}

// Classify returns lexical labels for the window's watched names, using
// the window's learned vocabulary to correct the transcript.
func (c *TranscriptClassifier) Classify(ctx context.Context, w *Window) ([]Label, error) {
	if w.Summary.Level < c.minLevel || len(w.Watched) == 0 {
		return nil, nil
	}
	text, err := c.transcriber.Transcribe(ctx, w.Samples, w.SampleRate)
	if err != nil {
		return nil, classificationError(err, "transcript")
	}
	return c.lexical.MatchVocabulary(text, w.Watched, w.Vocabulary), nil
}
