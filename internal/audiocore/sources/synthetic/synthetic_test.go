package synthetic

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/hearken/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(t *testing.T, s *Source, samples int) []int16 {
	t.Helper()
	out := make([]int16, 0, samples)
	timeout := time.After(5 * time.Second)
	for len(out) < samples {
		select {
		case chunk := <-s.Output():
			for i := 0; i+1 < len(chunk); i += 2 {
				out = append(out, int16(binary.LittleEndian.Uint16(chunk[i:])))
			}
		case <-timeout:
			t.Fatalf("timed out after %d samples", len(out))
		}
	}
	return out
}

func TestSilenceHonorsLimit(t *testing.T) {
	s, err := New(Config{Signal: Silence, SampleRate: 16000, Limit: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	samples := collect(t, s, 32000)
	for _, v := range samples {
		require.Zero(t, v)
	}

	testutil.WaitFor(t, func() bool { return s.Emitted() == 2*time.Second }, testutil.ShortTestTimeout, "limit reached")
	testutil.NoSignal(t, s.Output(), 50*time.Millisecond, "source emitted past its limit")
}

func TestToneAmplitude(t *testing.T) {
	s, err := New(Config{Signal: Tone, Amplitude: 0.5, Frequency: 1000, SampleRate: 16000})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	samples := collect(t, s, 1600)
	peak := 0
	for _, v := range samples {
		peak = max(peak, int(math.Abs(float64(v))))
	}
	assert.InDelta(t, 16383, peak, 200)
}

func TestNoiseIsSeeded(t *testing.T) {
	gen := func() []int16 {
		s, err := New(Config{Signal: Noise, Amplitude: 0.2, SampleRate: 8000, Seed: 7, Limit: 100 * time.Millisecond})
		require.NoError(t, err)
		require.NoError(t, s.Start(context.Background()))
		defer func() { _ = s.Stop() }()
		return collect(t, s, 800)
	}
	assert.Equal(t, gen(), gen())
}

func TestStartStopLifecycle(t *testing.T) {
	s, err := New(Config{Signal: Silence, SampleRate: 16000, Realtime: true})
	require.NoError(t, err)

	assert.NoError(t, s.Stop(), "stop before start")
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsActive())
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	assert.False(t, s.IsActive())
	assert.NoError(t, s.Stop())

	require.NoError(t, s.Start(context.Background()), "restart")
	require.NoError(t, s.Stop())
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Signal: "sweep", SampleRate: 16000})
	assert.Error(t, err)
	_, err = New(Config{Signal: Tone})
	assert.Error(t, err)
}
