// Package audio provides the PCM frame type and raw-audio plumbing shared by
// the capture transport, the VAD classifier, and the turn engine.
//
// All audio in the pipeline is 16-bit signed little-endian PCM. The sample
// rate and channel count of a stream are fixed by the pipeline configuration;
// frames that do not match are rejected before they reach the segmenter.
package audio

import "time"

// BytesPerSample is the size of one 16-bit PCM sample.
const BytesPerSample = 2

// DefaultSampleRate is the pipeline's reference sample rate in Hz.
const DefaultSampleRate = 16000

// DefaultFrameDuration is the pipeline's reference frame length.
const DefaultFrameDuration = 30 * time.Millisecond

// Frame represents a single fixed-duration block of audio samples flowing
// through the pipeline. Frames are the atomic unit of VAD processing —
// captured from the input transport, classified per frame, and accumulated
// into utterances. A Frame is immutable once produced.
type Frame struct {
	// Data is raw little-endian int16 PCM.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for the reference pipeline).
	SampleRate int

	// Channels: 1 for mono. The turn engine only processes mono audio.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame's PCM data.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (BytesPerSample * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// FrameSize returns the expected byte length of one mono PCM frame of the
// given duration at the given sample rate.
func FrameSize(sampleRate int, frameDuration time.Duration) int {
	samples := int(int64(sampleRate) * frameDuration.Nanoseconds() / int64(time.Second))
	return samples * BytesPerSample
}
