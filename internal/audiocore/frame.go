package audiocore

import (
	"context"
	"time"
)

// AudioFrame is a fixed-length block of mono PCM samples normalized to
// [-1, 1]. Frames are immutable once produced.
type AudioFrame struct {
	Seq        uint64
	Timestamp  time.Time
	SampleRate int
	Samples    []float32
}

// Duration returns the play time of the frame.
func (f *AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Snapshot is a contiguous copy of buffered audio, oldest sample first.
type Snapshot struct {
	Samples    []float32
	SampleRate int
	Start      time.Time
	FirstSeq   uint64
	LastSeq    uint64
}

// Duration returns the play time of the snapshot.
func (s Snapshot) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Empty reports whether the snapshot holds no audio.
func (s Snapshot) Empty() bool {
	return len(s.Samples) == 0
}

// AudioFormat describes the raw stream a source delivers.
type AudioFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// AudioSource is the device boundary. Start may be retried after a failure;
// Stop must be safe to call when Start never completed.
type AudioSource interface {
	// Name returns a human-readable device name
	Name() string

	Start(ctx context.Context) error
	Stop() error

	// Output delivers S16LE mono PCM in device-sized chunks
	Output() <-chan []byte

	// Errors reports asynchronous device failures
	Errors() <-chan error

	IsActive() bool
	Format() AudioFormat
}
