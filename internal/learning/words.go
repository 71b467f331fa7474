package learning

import (
	"cmp"
	"maps"
	"slices"

	"github.com/tphakala/hearken/internal/trigger"
)

// CommonWords counts the words of the corpus and returns the n most
// frequent, ties broken alphabetically.
func CommonWords(corpus []string, n int) []WordCount {
	counts := make(map[string]int)
	for _, text := range corpus {
		for _, w := range trigger.Tokenize(text) {
			counts[w]++
		}
	}

	words := make([]WordCount, 0, len(counts))
	for _, w := range slices.Sorted(maps.Keys(counts)) {
		words = append(words, WordCount{Word: w, Count: counts[w]})
	}
	slices.SortStableFunc(words, func(a, b WordCount) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if n > 0 && len(words) > n {
		words = words[:n]
	}
	return words
}
