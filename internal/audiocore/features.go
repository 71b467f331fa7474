package audiocore

import (
	"math"
	"math/bits"
	"math/cmplx"
	"sync"

	"github.com/tphakala/hearken/internal/errors"
)

const (
	// NumBands is the number of coarse spectral bands in a FeatureSet
	NumBands = 8

	// PeakThreshold is the amplitude a local maximum must exceed to count
	PeakThreshold = 0.1

	// maxFFTSize bounds the spectral analysis to keep the hot path cheap
	maxFFTSize = 4096
	minFFTSize = 16
)

// FeatureSet summarizes one frame or window.
type FeatureSet struct {
	Level            float64 // mean absolute amplitude, 0-1
	RMS              float64
	ZeroCrossingRate float64 // crossings per sample
	Peaks            int     // local maxima above PeakThreshold
	Bands            [NumBands]float64
}

// DominantBand returns the index of the band holding the most energy.
func (f *FeatureSet) DominantBand() int {
	best := 0
	for i := 1; i < NumBands; i++ {
		if f.Bands[i] > f.Bands[best] {
			best = i
		}
	}
	return best
}

// HighBandRatio returns the share of energy in the upper half of the bands.
func (f *FeatureSet) HighBandRatio() float64 {
	var high float64
	for i := NumBands / 2; i < NumBands; i++ {
		high += f.Bands[i]
	}
	return high
}

// Summarize combines per-frame feature sets into one window summary. Levels
// and band shares are averaged; peaks are summed.
func Summarize(sets []FeatureSet) FeatureSet {
	var out FeatureSet
	if len(sets) == 0 {
		return out
	}
	var rmsSq float64
	for i := range sets {
		out.Level += sets[i].Level
		out.ZeroCrossingRate += sets[i].ZeroCrossingRate
		out.Peaks += sets[i].Peaks
		rmsSq += sets[i].RMS * sets[i].RMS
		for b := range NumBands {
			out.Bands[b] += sets[i].Bands[b]
		}
	}
	n := float64(len(sets))
	out.Level /= n
	out.ZeroCrossingRate /= n
	out.RMS = math.Sqrt(rmsSq / n)
	for b := range NumBands {
		out.Bands[b] /= n
	}
	return out
}

// FeatureExtractor derives a FeatureSet from a frame. Scratch buffers are
// reused across calls, so after the first frame of a given size no further
// allocation happens. An extractor is safe for concurrent use but calls are
// serialized.
type FeatureExtractor struct {
	mu       sync.Mutex
	window   []float64 // Hann coefficients for the current FFT size
	spectrum []complex128
	twiddle  []complex128
	edges    [NumBands + 1]int
}

// NewFeatureExtractor returns an extractor with empty scratch.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{}
}

// Extract computes level, peaks, RMS, zero crossings and band energies.
// Empty frames and frames with non-finite samples yield an extraction
// error; the caller drops the frame.
func (fe *FeatureExtractor) Extract(frame *AudioFrame) (FeatureSet, error) {
	var fs FeatureSet
	if frame == nil || len(frame.Samples) == 0 {
		return fs, errors.Newf("empty audio frame").
			Component("audiocore").
			Category(errors.CategoryExtraction).
			Build()
	}
	samples := frame.Samples

	var sumAbs, sumSq float64
	crossings := 0
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fs, errors.Newf("non-finite sample at index %d", i).
				Component("audiocore").
				Category(errors.CategoryExtraction).
				Context("seq", frame.Seq).
				Build()
		}
		sumAbs += math.Abs(v)
		sumSq += v * v
		if i > 0 && (samples[i-1] < 0) != (s < 0) {
			crossings++
		}
		if i > 0 && i < len(samples)-1 && s > PeakThreshold && s > samples[i-1] && s > samples[i+1] {
			fs.Peaks++
		}
	}

	n := float64(len(samples))
	fs.Level = min(sumAbs/n, 1)
	fs.RMS = math.Sqrt(sumSq / n)
	fs.ZeroCrossingRate = float64(crossings) / n

	fe.mu.Lock()
	fe.bands(samples, &fs.Bands)
	fe.mu.Unlock()

	return fs, nil
}

// Reset drops scratch buffers. Used by the health monitor to recover a
// wedged pipeline.
func (fe *FeatureExtractor) Reset() {
	fe.mu.Lock()
	fe.window = nil
	fe.spectrum = nil
	fe.twiddle = nil
	fe.mu.Unlock()
}

// bands fills out with the share of spectral energy in NumBands
// log-spaced bands. Silence yields all zeros.
func (fe *FeatureExtractor) bands(samples []float32, out *[NumBands]float64) {
	size := fftSize(len(samples))
	if size < minFFTSize {
		return
	}
	fe.prepare(size)

	for i := range size {
		fe.spectrum[i] = complex(float64(samples[i])*fe.window[i], 0)
	}
	fe.fft()

	var total float64
	for b := range NumBands {
		var e float64
		for k := fe.edges[b]; k < fe.edges[b+1]; k++ {
			m := cmplx.Abs(fe.spectrum[k])
			e += m * m
		}
		out[b] = e
		total += e
	}
	if total <= 0 {
		*out = [NumBands]float64{}
		return
	}
	for b := range NumBands {
		out[b] /= total
	}
}

// fftSize returns the largest power of two not above n, capped.
func fftSize(n int) int {
	if n <= 0 {
		return 0
	}
	return min(1<<(bits.Len(uint(n))-1), maxFFTSize)
}

// prepare sizes scratch, window, twiddles and band edges for size.
func (fe *FeatureExtractor) prepare(size int) {
	if len(fe.spectrum) == size {
		return
	}
	fe.spectrum = make([]complex128, size)
	fe.window = make([]float64, size)
	for i := range size {
		fe.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size-1))
	}
	fe.twiddle = make([]complex128, size/2)
	for k := range size / 2 {
		angle := -2 * math.Pi * float64(k) / float64(size)
		fe.twiddle[k] = complex(math.Cos(angle), math.Sin(angle))
	}

	// Log-spaced edges over bins 1..size/2, each band at least one bin wide.
	half := size / 2
	fe.edges[0] = 1
	for b := 1; b <= NumBands; b++ {
		edge := int(math.Round(math.Pow(float64(half), float64(b)/NumBands)))
		fe.edges[b] = max(edge, fe.edges[b-1]+1)
	}
	fe.edges[NumBands] = half + 1
	for b := NumBands - 1; b > 0; b-- {
		if fe.edges[b] >= fe.edges[b+1] {
			fe.edges[b] = fe.edges[b+1] - 1
		}
	}
}

// fft runs an in-place iterative radix-2 transform over fe.spectrum.
func (fe *FeatureExtractor) fft() {
	x := fe.spectrum
	n := len(x)

	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		step := n / length
		halfLen := length / 2
		for start := 0; start < n; start += length {
			for k := range halfLen {
				t := fe.twiddle[k*step] * x[start+k+halfLen]
				u := x[start+k]
				x[start+k] = u + t
				x[start+k+halfLen] = u - t
			}
		}
	}
}
