package learning

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/observability/metrics"
	"github.com/tphakala/hearken/internal/trigger"
)

func newTestLoop(t *testing.T, p Persister, h *memHistory, m *metrics.LearningMetrics) (*Loop, *Store) {
	t.Helper()
	store := NewStore(p, StoreOptions{Timeout: time.Second})
	loop := NewLoop(store, h, h, LoopConfig{
		Interval:  time.Hour,
		InboxSize: 4,
		Timeout:   time.Second,
		Metrics:   m,
	})
	return loop, store
}

func TestRunCycleFoldsRecords(t *testing.T) {
	t.Parallel()

	h := &memHistory{}
	h.add(record(1, "help", 0.6, "help me"))
	h.add(record(2, "help", 0.8, "please help"))
	h.add(record(3, "gunshot", 0.9, trigger.ActivityHigh.Description()))
	fp := record(4, "glass breaking", 0.7, "")
	fp.FalsePositive = true
	h.add(fp)

	p := &memPersister{}
	loop, store := newTestLoop(t, p, h, nil)

	res, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.FlushErr)
	assert.Equal(t, 4, res.Reviewed)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.PatternsLearned)

	snap := store.Snapshot()
	assert.Equal(t, []string{"gunshot", "help"}, snap.Names())
	assert.InDelta(t, 0.7, snap.Patterns["help"].AvgConfidence, 1e-9)
	assert.Equal(t, []string{"help me", "please help"}, snap.Corpus, "activity descriptions stay out of the corpus")
	assert.Equal(t, "help", snap.CommonWords[0].Word)
	assert.Equal(t, "help", snap.Vocabulary()[0])
	assert.InDelta(t, 0.25, snap.FalsePositiveRate, 1e-9)
	assert.Equal(t, 4, snap.TotalRecords)
	assert.Equal(t, 1, snap.Triggers["glass breaking"].FalsePositives)
	assert.Equal(t, baseTime.Add(4*time.Second), snap.Watermark.At)
	assert.Equal(t, []string{"evt-004"}, snap.Watermark.IDs)

	assert.False(t, store.Dirty())
	assert.Equal(t, snap.Version, p.saved.Version)
	require.Len(t, h.sessions, 1)
	assert.Equal(t, 3, h.sessions[0].Processed)
}

func TestRunCycleIsIdempotent(t *testing.T) {
	t.Parallel()

	h := &memHistory{}
	for i := 1; i <= 5; i++ {
		h.add(record(i, "help", 0.5+float64(i)/20, "help"))
	}
	loop, store := newTestLoop(t, &memPersister{}, h, nil)

	_, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	first := store.Snapshot()

	res, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Same(t, first, store.Snapshot(), "unchanged events leave the state untouched")
	assert.Equal(t, int64(5), first.Patterns["help"].Count)
}

func TestRunCycleAppliesEachEventOnce(t *testing.T) {
	t.Parallel()

	h := &memHistory{}
	h.add(record(1, "help", 0.6, ""))
	loop, store := newTestLoop(t, nil, h, nil)

	// Live copy of a persisted event and a second live event sharing the
	// watermark timestamp.
	live := record(1, "help", 0.6, "").Observation()
	twin := live
	twin.EventID = "evt-twin"
	require.True(t, loop.Offer(live))
	require.True(t, loop.Offer(twin))

	_, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), store.Snapshot().Patterns["help"].Count)

	// A late event at the watermark timestamp is still applied once.
	late := twin
	late.EventID = "evt-late"
	require.True(t, loop.Offer(late))
	require.True(t, loop.Offer(twin))
	_, err = loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), store.Snapshot().Patterns["help"].Count)
	assert.Equal(t, []string{"evt-001", "evt-late", "evt-twin"}, store.Snapshot().Watermark.IDs)
}

func TestRunCycleQueryFailureKeepsPending(t *testing.T) {
	t.Parallel()

	h := &memHistory{fail: stderrors.New("dial tcp: connection refused")}
	reg := prometheus.NewRegistry()
	m, err := metrics.NewLearningMetrics(reg)
	require.NoError(t, err)
	loop, store := newTestLoop(t, nil, h, m)

	obs := record(1, "help", 0.9, "help").Observation()
	require.True(t, loop.Offer(obs))

	_, err = loop.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLearningCycle))
	assert.Equal(t, uint64(0), store.Snapshot().Version)
	assert.Equal(t, 1, loop.Stats().Pending)
	assert.Equal(t, uint64(1), loop.Stats().ConsecutiveFailures)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Cycles.WithLabelValues(metrics.StatusError)), 0)

	h.setFail(nil)
	_, err = loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.Snapshot().Patterns["help"].Count)
	assert.Zero(t, loop.Stats().Pending)
	assert.Zero(t, loop.Stats().ConsecutiveFailures)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Patterns), 0)
}

func TestRunCycleCancelledDiscardsPartialUpdate(t *testing.T) {
	t.Parallel()

	h := &memHistory{}
	h.add(record(1, "help", 0.9, "help"))
	h.add(record(2, "fire", 0.9, "fire"))
	loop, store := newTestLoop(t, nil, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loop.RunCycle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.AllNames())
	assert.Equal(t, uint64(0), store.Snapshot().Version)
}

func TestUnreachableStoreAcrossCycles(t *testing.T) {
	t.Parallel()

	h := &memHistory{}
	p := &memPersister{}
	loop, store := newTestLoop(t, p, h, nil)

	p.setFail(stderrors.New("connection refused"))
	for i := 1; i <= 3; i++ {
		require.True(t, loop.Offer(record(i, "help", 0.8, "help").Observation()))
		h.setFail(stderrors.New("connection refused"))
		_, err := loop.RunCycle(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, uint64(3), loop.Stats().ConsecutiveFailures)
	assert.Equal(t, 3, loop.Stats().Pending)

	// History back, state store still down: memory advances, flush fails.
	h.setFail(nil)
	res, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	require.Error(t, res.FlushErr)
	assert.Equal(t, int64(3), store.Snapshot().Patterns["help"].Count)
	assert.True(t, store.Dirty())

	p.setFail(nil)
	_, err = loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, store.Dirty())
	require.NotNil(t, p.saved)
	assert.Equal(t, int64(3), p.saved.Patterns["help"].Count)
}

func TestBootOutageKeepsPersistedState(t *testing.T) {
	t.Parallel()

	saved := NewState()
	saved.Version = 7
	saved.Patterns["help"] = Pattern{Name: "help", Count: 40, AvgConfidence: 0.8, LastSeen: baseTime}
	p := &memPersister{saved: saved, fail: stderrors.New("connection refused")}
	h := &memHistory{}
	h.add(record(1, "gunshot", 0.9, "bang"))
	loop, store := newTestLoop(t, p, h, nil)

	// Unreachable at boot: the cycle works in memory but saves nothing.
	require.Error(t, store.Load(context.Background()))
	res, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	require.Error(t, res.FlushErr)
	assert.Equal(t, []string{"gunshot"}, store.AllNames())
	assert.Equal(t, 0, p.saves)

	// Live event seen during the outage but never persisted to history.
	require.True(t, loop.Offer(record(2, "fire", 0.7, "fire").Observation()))
	_, err = loop.RunCycle(context.Background())
	require.NoError(t, err)

	p.setFail(nil)
	res, err = loop.RunCycle(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.FlushErr)
	assert.True(t, store.Loaded())

	require.NotNil(t, p.saved)
	assert.Equal(t, []string{"fire", "gunshot", "help"}, p.saved.Names())
	assert.Equal(t, int64(40), p.saved.Patterns["help"].Count)
	assert.Equal(t, int64(1), p.saved.Patterns["gunshot"].Count)
	assert.Equal(t, int64(1), p.saved.Patterns["fire"].Count)
	assert.Greater(t, p.saved.Version, uint64(7))
	assert.False(t, store.Dirty())

	// Replayed observations are applied once.
	res, err = loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Equal(t, int64(1), store.Snapshot().Patterns["gunshot"].Count)
}

func TestOfferDropsWhenFull(t *testing.T) {
	t.Parallel()

	loop, _ := newTestLoop(t, nil, &memHistory{}, nil)
	for i := range 4 {
		require.True(t, loop.Offer(detection.Observation{EventID: string(rune('a' + i))}))
	}
	assert.False(t, loop.Offer(detection.Observation{EventID: "z"}))
	assert.Equal(t, uint64(1), loop.Stats().Dropped)
	assert.Equal(t, 4, loop.Stats().Pending)
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	h := &memHistory{}
	h.add(record(1, "help", 0.9, ""))
	p := &memPersister{}
	store := NewStore(p, StoreOptions{})
	loop := NewLoop(store, h, nil, LoopConfig{Interval: 10 * time.Millisecond})

	loop.Stop()
	loop.Start(context.Background())
	loop.Start(context.Background())

	require.Eventually(t, func() bool {
		return loop.Stats().Cycles > 0
	}, 2*time.Second, 5*time.Millisecond)

	loop.Stop()
	loop.Stop()
	assert.False(t, store.Dirty())
	assert.False(t, loop.Stats().LastCycle.IsZero())
}
