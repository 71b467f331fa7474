package audiocore

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/hearken/internal/errors"
)

// slot holds one frame's worth of samples. n is the number of valid samples;
// a slot becomes visible to readers only after it is fully copied, since
// writers and readers share mu.
type slot struct {
	samples   []float32
	n         int
	seq       uint64
	timestamp time.Time
}

// RingBuffer keeps the most recent bufferDuration of audio as fixed-size
// frame slots. Writes overwrite the oldest slot once the buffer is full and
// never fail. Snapshots copy data out, so a caller never observes a
// concurrent write.
type RingBuffer struct {
	mu         sync.RWMutex
	sampleRate int
	frameSize  int
	seconds    float64
	capacity   int // samples retrievable, seconds × sampleRate
	slots      []slot
	write      int // index of the oldest-to-be-overwritten slot
	filled     int
	stored     int // valid samples across filled slots

	framesWritten atomic.Uint64
	utilization   atomic.Uint64 // math.Float64bits of stored/capacity
}

// NewRingBuffer creates a buffer holding seconds of audio at sampleRate,
// sliced into slots of frameSize samples.
func NewRingBuffer(seconds float64, sampleRate, frameSize int) (*RingBuffer, error) {
	if sampleRate <= 0 || frameSize <= 0 {
		return nil, errors.Newf("invalid ring buffer geometry: rate %d, frame %d", sampleRate, frameSize).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	rb := &RingBuffer{sampleRate: sampleRate, frameSize: frameSize}
	if err := rb.Resize(seconds); err != nil {
		return nil, err
	}
	return rb, nil
}

// Resize reinitializes storage for a new duration. All previously buffered
// audio is dropped; the buffer is cold afterwards.
func (rb *RingBuffer) Resize(seconds float64) error {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return errors.Newf("invalid buffer duration: %v seconds", seconds).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}

	capacity := int(seconds * float64(rb.sampleRate))
	if capacity < 1 {
		capacity = 1
	}
	numSlots := (capacity + rb.frameSize - 1) / rb.frameSize

	slots := make([]slot, numSlots)
	backing := make([]float32, numSlots*rb.frameSize)
	for i := range slots {
		slots[i].samples = backing[i*rb.frameSize : (i+1)*rb.frameSize : (i+1)*rb.frameSize]
	}

	rb.mu.Lock()
	rb.seconds = seconds
	rb.capacity = capacity
	rb.slots = slots
	rb.write = 0
	rb.filled = 0
	rb.stored = 0
	rb.utilization.Store(0)
	rb.mu.Unlock()

	return nil
}

// Write copies a frame into the buffer. Frames longer than the slot size
// span several slots; the timestamps of the extra slots are offset by the
// samples before them.
func (rb *RingBuffer) Write(frame *AudioFrame) {
	if frame == nil || len(frame.Samples) == 0 {
		return
	}

	rb.mu.Lock()
	for off := 0; off < len(frame.Samples); off += rb.frameSize {
		end := min(off+rb.frameSize, len(frame.Samples))
		s := &rb.slots[rb.write]

		if rb.filled == len(rb.slots) {
			rb.stored -= s.n
		} else {
			rb.filled++
		}

		s.n = copy(s.samples, frame.Samples[off:end])
		s.seq = frame.Seq
		s.timestamp = frame.Timestamp.Add(time.Duration(off) * time.Second / time.Duration(rb.sampleRate))
		rb.stored += s.n

		rb.write = (rb.write + 1) % len(rb.slots)
	}
	util := float64(min(rb.stored, rb.capacity)) / float64(rb.capacity)
	rb.utilization.Store(math.Float64bits(util))
	rb.mu.Unlock()

	rb.framesWritten.Add(1)
}

// Snapshot returns a copy of the most recent seconds of audio, oldest sample
// first. It returns whatever is buffered when less audio exists and never
// more than the buffer capacity. When the request does not align with slot
// boundaries the head of the oldest slot is trimmed.
func (rb *RingBuffer) Snapshot(seconds float64) Snapshot {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	snap := Snapshot{SampleRate: rb.sampleRate}
	if seconds <= 0 || rb.filled == 0 {
		return snap
	}

	want := int(seconds * float64(rb.sampleRate))
	want = min(want, rb.capacity, rb.stored)
	if want <= 0 {
		return snap
	}

	// Walk back from the newest slot until enough samples are covered.
	n := len(rb.slots)
	first := rb.write
	covered := 0
	count := 0
	for covered < want && count < rb.filled {
		first = (first - 1 + n) % n
		covered += rb.slots[first].n
		count++
	}

	skip := covered - want
	out := make([]float32, 0, want)
	for i := range count {
		s := &rb.slots[(first+i)%n]
		src := s.samples[:s.n]
		if i == 0 {
			src = src[skip:]
			snap.FirstSeq = s.seq
			snap.Start = s.timestamp.Add(time.Duration(skip) * time.Second / time.Duration(rb.sampleRate))
		}
		out = append(out, src...)
		if i == count-1 {
			snap.LastSeq = s.seq
		}
	}
	snap.Samples = out
	return snap
}

// Reset drops buffered audio while keeping the configured duration.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	for i := range rb.slots {
		clear(rb.slots[i].samples)
		rb.slots[i].n = 0
	}
	rb.write = 0
	rb.filled = 0
	rb.stored = 0
	rb.utilization.Store(0)
	rb.mu.Unlock()
}

// Utilization returns the buffered fraction of capacity in [0, 1]. It reads
// an atomic and never waits on writers.
func (rb *RingBuffer) Utilization() float64 {
	return math.Float64frombits(rb.utilization.Load())
}

// Capacity returns the number of samples the buffer retains.
func (rb *RingBuffer) Capacity() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.capacity
}

// DurationSeconds returns the configured buffer duration.
func (rb *RingBuffer) DurationSeconds() float64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.seconds
}

// SampleRate returns the sample rate the buffer was created for.
func (rb *RingBuffer) SampleRate() int {
	return rb.sampleRate
}

// FramesWritten returns the number of frames written since creation. It is
// not reset by Resize or Reset so stall detection keeps working across them.
func (rb *RingBuffer) FramesWritten() uint64 {
	return rb.framesWritten.Load()
}
