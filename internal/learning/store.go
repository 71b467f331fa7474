package learning

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
)

// Persister loads and saves learning state. The datastore implements it.
// LoadLearningState returns nil and no error when nothing was saved yet.
type Persister interface {
	LoadLearningState(ctx context.Context) (*State, error)
	SaveLearningState(ctx context.Context, state *State) error
}

// StoreOptions bounds the store's contents.
type StoreOptions struct {
	CorpusLimit int           // transcripts kept in the corpus
	CommonWords int           // size of the common word list
	Timeout     time.Duration // bound on each persistence call
}

// Summary is the status view of the store.
type Summary struct {
	Patterns          int
	FalsePositiveRate float64
	CorpusSize        int
	Version           uint64
	UpdatedAt         time.Time
	Dirty             bool
	LastFlush         time.Time
}

// FlushStats counts flush outcomes.
type FlushStats struct {
	Successes uint64
	Failures  uint64
}

// SuccessRate returns the share of successful flushes, 1 when none ran.
func (f FlushStats) SuccessRate() float64 {
	total := f.Successes + f.Failures
	if total == 0 {
		return 1
	}
	return float64(f.Successes) / float64(total)
}

// Store is the single writable copy of the learning state. Readers use
// Snapshot, Get or LookupPattern and never block; writers serialize on a
// mutex and publish with one atomic swap.
type Store struct {
	state     atomic.Pointer[State]
	writeMu   sync.Mutex
	persister Persister
	opts      StoreOptions

	loaded        atomic.Bool // persisted state read, or no persister
	dirty         atomic.Bool
	flushed       atomic.Uint64 // version last saved
	lastFlush     atomic.Int64  // unix nanos
	flushSuccess  atomic.Uint64
	flushFailures atomic.Uint64
}

// NewStore returns an empty store backed by p, which may be nil for a
// memory-only store.
func NewStore(p Persister, opts StoreOptions) *Store {
	if opts.CorpusLimit <= 0 {
		opts.CorpusLimit = 1000
	}
	if opts.CommonWords <= 0 {
		opts.CommonWords = 50
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	s := &Store{persister: p, opts: opts}
	s.state.Store(NewState())
	s.loaded.Store(p == nil)
	return s
}

// Snapshot returns the current immutable state.
func (s *Store) Snapshot() *State {
	return s.state.Load()
}

// Get returns the pattern for name.
func (s *Store) Get(name string) (Pattern, bool) {
	p, ok := s.Snapshot().Patterns[normalize(name)]
	return p, ok
}

// AllNames returns the learned pattern names, sorted.
func (s *Store) AllNames() []string {
	return s.Snapshot().Names()
}

// ApplyObservation folds one observation of name into its pattern.
func (s *Store) ApplyObservation(name string, confidence float64, at time.Time) error {
	return s.Update(func(tx *Txn) error {
		tx.ApplyObservation(name, confidence, at)
		return nil
	})
}

// AppendCorpus adds a transcript to the corpus.
func (s *Store) AppendCorpus(text string) error {
	return s.Update(func(tx *Txn) error {
		tx.AppendCorpus(text)
		return nil
	})
}

// Update stages changes in a transaction and commits them atomically. When
// fn returns an error nothing is committed. A transaction that changes
// nothing leaves the version untouched.
func (s *Store) Update(fn func(tx *Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base := s.state.Load()
	tx := &Txn{draft: base.clone(), opts: s.opts}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.changed {
		return nil
	}
	tx.draft.Version = base.Version + 1
	tx.draft.UpdatedAt = time.Now()
	s.state.Store(tx.draft)
	s.dirty.Store(true)
	return nil
}

// Load replaces the state with the persisted one. On failure the current
// state is kept and a persistence error is returned. When nothing was
// saved yet the current state is kept and becomes the persisted baseline.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	persisted, err := s.persister.LoadLearningState(ctx)
	if err != nil {
		return errors.New(err).
			Component("learning").
			Category(errors.CategoryPersistence).
			Context("operation", "load_state").
			Build()
	}
	if persisted == nil {
		GetLogger().Info("no persisted learning state, starting empty")
		s.loaded.Store(true)
		return nil
	}

	state := persisted.sanitize()
	s.writeMu.Lock()
	s.state.Store(state)
	s.dirty.Store(false)
	s.flushed.Store(state.Version)
	s.loaded.Store(true)
	s.writeMu.Unlock()

	GetLogger().Info("learning state loaded",
		logger.Int("patterns", len(state.Patterns)),
		logger.Int("corpus", len(state.Corpus)),
		logger.Uint64("version", state.Version))
	return nil
}

// Flush saves the current state when it changed since the last successful
// flush. On failure memory stays authoritative and the store stays dirty.
// Until Load succeeds nothing is saved, so a state built while the store
// was unreachable never overwrites the persisted one.
func (s *Store) Flush(ctx context.Context) error {
	if s.persister == nil || !s.dirty.Load() {
		return nil
	}
	if !s.loaded.Load() {
		s.flushFailures.Add(1)
		return errors.Newf("learning state not loaded").
			Component("learning").
			Category(errors.CategoryPersistence).
			Context("operation", "save_state").
			Build()
	}
	snap := s.Snapshot()

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if err := s.persister.SaveLearningState(ctx, snap); err != nil {
		s.flushFailures.Add(1)
		return errors.New(err).
			Component("learning").
			Category(errors.CategoryPersistence).
			Context("operation", "save_state").
			Context("version", snap.Version).
			Build()
	}

	s.flushSuccess.Add(1)
	s.flushed.Store(snap.Version)
	s.lastFlush.Store(time.Now().UnixNano())
	// A commit that raced the save keeps the store dirty.
	if s.Snapshot().Version == snap.Version {
		s.dirty.Store(false)
	}
	return nil
}

// Loaded reports whether the persisted state has been read. A store
// without a persister is always loaded.
func (s *Store) Loaded() bool {
	return s.loaded.Load()
}

// Dirty reports whether committed changes are not yet persisted.
func (s *Store) Dirty() bool {
	return s.dirty.Load()
}

// Summary returns the status view.
func (s *Store) Summary() Summary {
	st := s.Snapshot()
	sum := Summary{
		Patterns:          len(st.Patterns),
		FalsePositiveRate: st.FalsePositiveRate,
		CorpusSize:        len(st.Corpus),
		Version:           st.Version,
		UpdatedAt:         st.UpdatedAt,
		Dirty:             s.Dirty(),
	}
	if ns := s.lastFlush.Load(); ns > 0 {
		sum.LastFlush = time.Unix(0, ns)
	}
	return sum
}

// FlushStats returns flush outcome counters.
func (s *Store) FlushStats() FlushStats {
	return FlushStats{Successes: s.flushSuccess.Load(), Failures: s.flushFailures.Load()}
}

// Txn stages changes to a private copy of the state.
type Txn struct {
	draft   *State
	opts    StoreOptions
	changed bool
}

// Get returns the staged pattern for name.
func (tx *Txn) Get(name string) (Pattern, bool) {
	p, ok := tx.draft.Patterns[normalize(name)]
	return p, ok
}

// ApplyObservation folds one observation into the staged pattern.
func (tx *Txn) ApplyObservation(name string, confidence float64, at time.Time) {
	key := normalize(name)
	if key == "" {
		return
	}
	p := tx.draft.Patterns[key]
	p.Name = key
	tx.draft.Patterns[key] = p.observe(confidence, at)
	tx.changed = true
}

// AppendCorpus adds a transcript, evicting the oldest past the limit.
func (tx *Txn) AppendCorpus(text string) {
	if text == "" {
		return
	}
	tx.draft.Corpus = append(tx.draft.Corpus, text)
	if over := len(tx.draft.Corpus) - tx.opts.CorpusLimit; over > 0 {
		tx.draft.Corpus = slices.Delete(tx.draft.Corpus, 0, over)
	}
	tx.changed = true
}

// RecomputeCommonWords rebuilds the common word list from the corpus.
func (tx *Txn) RecomputeCommonWords() {
	words := CommonWords(tx.draft.Corpus, tx.opts.CommonWords)
	if !slices.Equal(words, tx.draft.CommonWords) {
		tx.draft.CommonWords = words
		tx.changed = true
	}
}

// SetTriggerStats replaces the per-trigger statistics.
func (tx *Txn) SetTriggerStats(stats map[string]TriggerStats, totalRecords int) {
	if !maps.EqualFunc(stats, tx.draft.Triggers, triggerStatsEqual) || tx.draft.TotalRecords != totalRecords {
		tx.draft.Triggers = stats
		tx.draft.TotalRecords = totalRecords
		tx.changed = true
	}
}

// SetFalsePositiveRate replaces the false-positive estimate.
func (tx *Txn) SetFalsePositiveRate(rate float64) {
	if rate != tx.draft.FalsePositiveRate {
		tx.draft.FalsePositiveRate = rate
		tx.changed = true
	}
}

// Watermark returns the staged watermark.
func (tx *Txn) Watermark() Watermark {
	return tx.draft.Watermark
}

// AdvanceWatermark moves the watermark to at, or adds ids when at equals
// the current watermark. Older timestamps are ignored.
func (tx *Txn) AdvanceWatermark(at time.Time, ids []string) {
	wm := &tx.draft.Watermark
	switch {
	case at.After(wm.At):
		wm.At = at
		wm.IDs = slices.Sorted(slices.Values(ids))
	case at.Equal(wm.At):
		merged := slices.Concat(wm.IDs, ids)
		slices.Sort(merged)
		wm.IDs = slices.Compact(merged)
	default:
		return
	}
	tx.changed = true
}

func triggerStatsEqual(a, b TriggerStats) bool {
	return a.Count == b.Count && a.AvgConfidence == b.AvgConfidence &&
		a.LastSeen.Equal(b.LastSeen) && a.FalsePositives == b.FalsePositives
}
