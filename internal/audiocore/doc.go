// Package audiocore holds the capture-side audio primitives of hearken.
//
// Data flow:
//
//	AudioSource -> FrameAssembler -> RingBuffer
//	                              -> FeatureExtractor -> trigger matching
//
// Sources deliver raw S16LE bytes in whatever period the device uses. The
// FrameAssembler cuts them into fixed-length AudioFrames, the RingBuffer
// retains the most recent window of frames and the FeatureExtractor derives
// a FeatureSet from each frame. Snapshots taken from the RingBuffer are
// copies; callers own them.
package audiocore
