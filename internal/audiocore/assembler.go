package audiocore

import (
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/hearken/internal/errors"
)

// FrameAssembler cuts device chunks of arbitrary length into fixed-size
// AudioFrames. Bytes that do not yet fill a frame wait in a byte FIFO. The
// assembler is owned by the capture goroutine and is not safe for concurrent
// use.
type FrameAssembler struct {
	fifo       *ringbuffer.RingBuffer
	sampleRate int
	frameBytes int
	gainDB     float64
	seq        uint64
	raw        []byte
}

// NewFrameAssembler returns an assembler producing frames of frameSize
// samples. gainDB is applied to every frame.
func NewFrameAssembler(format AudioFormat, frameSize int, gainDB float64) (*FrameAssembler, error) {
	if err := validateFormat(format); err != nil {
		return nil, err
	}
	if frameSize <= 0 {
		return nil, errors.Newf("invalid frame size %d", frameSize).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	frameBytes := frameSize * 2
	return &FrameAssembler{
		fifo:       ringbuffer.New(frameBytes * 4),
		sampleRate: format.SampleRate,
		frameBytes: frameBytes,
		gainDB:     gainDB,
		raw:        make([]byte, frameBytes),
	}, nil
}

// Push appends a device chunk that finished arriving at `at` and calls emit
// for every completed frame, in order. Frame timestamps are derived from
// `at` and the bytes still pending after each frame.
func (a *FrameAssembler) Push(chunk []byte, at time.Time, emit func(*AudioFrame)) {
	for len(chunk) > 0 {
		n, _ := a.fifo.Write(chunk[:min(len(chunk), a.fifo.Free())])
		chunk = chunk[n:]

		for a.fifo.Length() >= a.frameBytes {
			if _, err := a.fifo.Read(a.raw); err != nil {
				break
			}
			// Bytes after this frame are still queued in the FIFO or the
			// unwritten rest of the chunk.
			pending := a.fifo.Length() + len(chunk)
			end := at.Add(-a.bytesDuration(pending))

			a.seq++
			frame := &AudioFrame{
				Seq:        a.seq,
				SampleRate: a.sampleRate,
				Samples:    ConvertS16ToFloat32(nil, a.raw),
			}
			frame.Timestamp = end.Add(-frame.Duration())
			ApplyGainDB(frame.Samples, a.gainDB)
			emit(frame)
		}
	}
}

// Pending returns the number of buffered bytes not yet forming a frame.
func (a *FrameAssembler) Pending() int {
	return a.fifo.Length()
}

// Seq returns the sequence number of the last emitted frame.
func (a *FrameAssembler) Seq() uint64 {
	return a.seq
}

// Reset discards partially assembled audio. Sequence numbers keep counting.
func (a *FrameAssembler) Reset() {
	a.fifo.Reset()
}

func (a *FrameAssembler) bytesDuration(n int) time.Duration {
	return time.Duration(n/2) * time.Second / time.Duration(a.sampleRate)
}
