package audiocore

import (
	"math"

	"github.com/tphakala/hearken/internal/errors"
)

const s16Divisor = float32(32768.0)

// ConvertS16ToFloat32 converts little-endian 16-bit PCM into dst, growing it
// when needed, and returns the converted slice. A trailing odd byte is
// ignored.
func ConvertS16ToFloat32(dst []float32, src []byte) []float32 {
	n := len(src) / 2
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range n {
		sample := int16(src[i*2]) | int16(src[i*2+1])<<8
		dst[i] = float32(sample) / s16Divisor
	}
	return dst
}

// ConvertFloat32ToS16 converts normalized samples to 16-bit integers,
// clipping values outside [-1, 1].
func ConvertFloat32ToS16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int(v)
	}
	return out
}

// ApplyGainDB scales samples in place by a gain in decibels.
func ApplyGainDB(samples []float32, gainDB float64) {
	if gainDB == 0 {
		return
	}
	factor := float32(math.Pow(10, gainDB/20))
	for i := range samples {
		v := samples[i] * factor
		switch {
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		samples[i] = v
	}
}

// Resample converts mono samples between rates with cubic interpolation.
// Inputs shorter than four samples are interpolated linearly.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(toRate) / float64(fromRate)
	out := make([]float32, int(float64(len(samples))*ratio))
	if len(samples) < 4 {
		for i := range out {
			pos := float64(i) / ratio
			idx := min(int(pos), len(samples)-1)
			next := min(idx+1, len(samples)-1)
			frac := float32(pos - float64(idx))
			out[i] = samples[idx] + (samples[next]-samples[idx])*frac
		}
		return out
	}

	last := len(samples) - 3
	for i := range out {
		pos := float64(i) / ratio
		idx := min(max(int(pos), 1), last)
		frac := float32(pos) - float32(idx)

		y0, y1, y2, y3 := samples[idx-1], samples[idx], samples[idx+1], samples[idx+2]
		mu2 := frac * frac
		a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
		a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
		a2 := -0.5*y0 + 0.5*y2
		out[i] = a0*frac*mu2 + a1*mu2 + a2*frac + y1
	}
	return out
}

// validateFormat rejects formats the assembler cannot frame.
func validateFormat(format AudioFormat) error {
	if format.SampleRate <= 0 || format.Channels != 1 || format.BitDepth != 16 {
		return errors.Newf("unsupported audio format: %d Hz, %d channels, %d bit",
			format.SampleRate, format.Channels, format.BitDepth).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("sample_rate", format.SampleRate).
			Context("channels", format.Channels).
			Context("bit_depth", format.BitDepth).
			Build()
	}
	return nil
}
