package audiocore

import (
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/hearken/internal/errors"
)

// seekableBuffer is an in-memory io.WriteSeeker, needed because the WAV
// encoder patches the header sizes on Close.
type seekableBuffer struct {
	buf []byte
	pos int64
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.buf)) {
		b.buf = append(b.buf, make([]byte, end-int64(len(b.buf)))...)
	}
	copy(b.buf[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.pos + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.NewStd("invalid whence")
	}
	if abs < 0 {
		return 0, errors.NewStd("negative position")
	}
	b.pos = abs
	return abs, nil
}

// EncodeWAV encodes a snapshot as 16-bit mono PCM WAV.
func EncodeWAV(snap *Snapshot) ([]byte, error) {
	if snap == nil || snap.SampleRate <= 0 {
		return nil, errors.Newf("snapshot has no sample rate").
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}

	out := &seekableBuffer{}
	enc := wav.NewEncoder(out, snap.SampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Data:           ConvertFloat32ToS16(snap.Samples),
		Format:         &audio.Format{SampleRate: snap.SampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryFileIO).
			Context("operation", "wav_encode").
			Build()
	}
	if err := enc.Close(); err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryFileIO).
			Context("operation", "wav_finalize").
			Build()
	}
	return out.buf, nil
}

// DecodeWAV reads a 16-bit mono WAV back into a snapshot.
func DecodeWAV(r io.ReadSeeker) (Snapshot, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Snapshot{}, errors.Newf("not a valid WAV stream").
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Snapshot{}, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryFileIO).
			Context("operation", "wav_decode").
			Build()
	}
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / s16Divisor
	}
	return Snapshot{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}
