package listener

import (
	"sync"

	"github.com/tphakala/hearken/internal/audiocore"
)

type featureEntry struct {
	seq uint64
	fs  audiocore.FeatureSet
}

// featureLog keeps the features of the most recent frames so a window cut
// from the ring buffer can be paired with the features it spans.
type featureLog struct {
	mu      sync.Mutex
	entries []featureEntry
	next    int
	size    int
}

func newFeatureLog(capacity int) *featureLog {
	return &featureLog{entries: make([]featureEntry, max(capacity, 1))}
}

func (l *featureLog) add(seq uint64, fs audiocore.FeatureSet) {
	l.mu.Lock()
	l.entries[l.next] = featureEntry{seq: seq, fs: fs}
	l.next = (l.next + 1) % len(l.entries)
	l.size = min(l.size+1, len(l.entries))
	l.mu.Unlock()
}

// span returns the features of frames first through last, oldest first.
// Frames no longer in the log are skipped.
func (l *featureLog) span(first, last uint64) []audiocore.FeatureSet {
	if last < first {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]audiocore.FeatureSet, 0, min(l.size, int(last-first)+1))
	start := (l.next - l.size + len(l.entries)) % len(l.entries)
	for i := range l.size {
		e := &l.entries[(start+i)%len(l.entries)]
		if e.seq >= first && e.seq <= last {
			out = append(out, e.fs)
		}
	}
	return out
}

// reset empties the log and sets a new capacity.
func (l *featureLog) reset(capacity int) {
	l.mu.Lock()
	l.entries = make([]featureEntry, max(capacity, 1))
	l.next = 0
	l.size = 0
	l.mu.Unlock()
}
