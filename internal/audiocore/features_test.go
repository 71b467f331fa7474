package audiocore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/hearken/internal/errors"
)

func sine(freq, amp float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	return out
}

func TestExtractSilence(t *testing.T) {
	t.Parallel()

	fs, err := NewFeatureExtractor().Extract(silentFrame(1))
	require.NoError(t, err)
	assert.Zero(t, fs.Level)
	assert.Zero(t, fs.RMS)
	assert.Zero(t, fs.Peaks)
	assert.Equal(t, [NumBands]float64{}, fs.Bands)
}

func TestExtractLevelAndPeaks(t *testing.T) {
	t.Parallel()

	samples := []float32{0, 0.5, 0, -0.5, 0, 0.05, 0, 0.2, 0.1, 0.3, 0}
	fs, err := NewFeatureExtractor().Extract(&AudioFrame{Samples: samples, SampleRate: testRate})
	require.NoError(t, err)

	assert.InDelta(t, 1.65/11, fs.Level, 1e-6)
	// 0.5, 0.2 and 0.3 are local maxima above the threshold; 0.05 is not.
	assert.Equal(t, 3, fs.Peaks)
	assert.Positive(t, fs.ZeroCrossingRate)
}

func TestExtractLevelIsClamped(t *testing.T) {
	t.Parallel()

	samples := []float32{1.5, -1.5, 1.5, -1.5}
	fs, err := NewFeatureExtractor().Extract(&AudioFrame{Samples: samples, SampleRate: testRate})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, fs.Level, 1e-9)
}

func TestExtractBandsFollowFrequency(t *testing.T) {
	t.Parallel()

	fe := NewFeatureExtractor()
	low, err := fe.Extract(&AudioFrame{Samples: sine(100, 0.5, 2048), SampleRate: testRate})
	require.NoError(t, err)
	high, err := fe.Extract(&AudioFrame{Samples: sine(6000, 0.5, 2048), SampleRate: testRate})
	require.NoError(t, err)

	assert.Greater(t, high.DominantBand(), low.DominantBand())
	assert.Greater(t, high.HighBandRatio(), 0.9)
	assert.Less(t, low.HighBandRatio(), 0.1)

	var sum float64
	for _, b := range low.Bands {
		assert.GreaterOrEqual(t, b, 0.0)
		sum += b
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestExtractIsDeterministicAcrossReset(t *testing.T) {
	t.Parallel()

	fe := NewFeatureExtractor()
	frame := &AudioFrame{Samples: sine(440, 0.3, testFrame), SampleRate: testRate}
	first, err := fe.Extract(frame)
	require.NoError(t, err)

	fe.Reset()
	second, err := fe.Extract(frame)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtractRejectsMalformedFrames(t *testing.T) {
	t.Parallel()

	fe := NewFeatureExtractor()

	_, err := fe.Extract(&AudioFrame{SampleRate: testRate})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryExtraction))

	_, err = fe.Extract(&AudioFrame{Samples: []float32{0, float32(math.NaN()), 0}, SampleRate: testRate})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryExtraction))

	_, err = fe.Extract(nil)
	assert.Error(t, err)
}

func TestExtractDoesNotAllocateAfterWarmup(t *testing.T) {
	fe := NewFeatureExtractor()
	frame := &AudioFrame{Samples: sine(1000, 0.4, testFrame), SampleRate: testRate}
	_, err := fe.Extract(frame)
	require.NoError(t, err)

	allocs := testing.AllocsPerRun(50, func() {
		_, _ = fe.Extract(frame)
	})
	assert.Zero(t, allocs)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	a := FeatureSet{Level: 0.2, RMS: 0.3, Peaks: 2}
	a.Bands[0] = 1
	b := FeatureSet{Level: 0.4, RMS: 0.4, Peaks: 3}
	b.Bands[7] = 1

	s := Summarize([]FeatureSet{a, b})
	assert.InDelta(t, 0.3, s.Level, 1e-9)
	assert.Equal(t, 5, s.Peaks)
	assert.InDelta(t, math.Sqrt((0.09+0.16)/2), s.RMS, 1e-9)
	assert.InDelta(t, 0.5, s.Bands[0], 1e-9)
	assert.InDelta(t, 0.5, s.Bands[7], 1e-9)
	assert.Equal(t, FeatureSet{}, Summarize(nil))
}
