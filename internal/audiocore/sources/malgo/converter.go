package malgo

import (
	"encoding/binary"
	"math"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/hearken/internal/errors"
)

// bytesPerSample returns the sample width of a malgo format, zero when the
// format is not supported.
func bytesPerSample(format malgo.FormatType) int {
	switch format {
	case malgo.FormatU8:
		return 1
	case malgo.FormatS16:
		return 2
	case malgo.FormatS24:
		return 3
	case malgo.FormatS32, malgo.FormatF32:
		return 4
	default:
		return 0
	}
}

// toS16 converts one device buffer to S16LE. The result never aliases the
// input, since malgo reuses its callback buffers.
func toS16(samples []byte, format malgo.FormatType) ([]byte, error) {
	width := bytesPerSample(format)
	if width == 0 {
		return nil, errors.Newf("unsupported capture format %v", format).
			Component("audiocore").
			Category(errors.CategoryDevice).
			Build()
	}

	count := len(samples) / width
	out := make([]byte, count*2)
	if format == malgo.FormatS16 {
		copy(out, samples)
		return out, nil
	}

	for i := range count {
		src := samples[i*width : (i+1)*width]
		var v int32
		switch format {
		case malgo.FormatU8:
			v = (int32(src[0]) - 128) << 8
		case malgo.FormatS24:
			v = int32(src[0]) | int32(src[1])<<8 | int32(int8(src[2]))<<16
			v >>= 8
		case malgo.FormatS32:
			v = int32(binary.LittleEndian.Uint32(src)) >> 16
		case malgo.FormatF32:
			f := float64(math.Float32frombits(binary.LittleEndian.Uint32(src)))
			v = int32(math.Round(math.Max(-1, math.Min(1, f)) * 32767))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out, nil
}
