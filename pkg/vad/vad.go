// Package vad defines the Classifier interface for Voice Activity Detection.
//
// A classifier makes a per-frame binary speech/non-speech decision over a
// fixed-size PCM frame. Classification is synchronous and stateless by
// design: the same frame under the same configuration always yields the same
// result, making it suitable for the low-latency segmentation loop that gates
// STT input.
//
// Implementations must be safe for concurrent use.
package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/parleyvoice/parley/pkg/audio"
)

// ErrInvalidConfig is returned by a classifier constructor when the sample
// rate, frame duration, or aggressiveness is outside the supported set.
var ErrInvalidConfig = errors.New("vad: invalid configuration")

// ErrInvalidFrame is returned by IsSpeech when the supplied frame does not
// match the byte length implied by the configured sample rate and frame
// duration.
var ErrInvalidFrame = errors.New("vad: frame size mismatch")

// Aggressiveness selects how strongly the classifier filters out non-speech.
// Higher values reduce false positives at the cost of clipping quiet speech.
type Aggressiveness int

const (
	AggressivenessLow      Aggressiveness = 0
	AggressivenessModerate Aggressiveness = 1
	AggressivenessHigh     Aggressiveness = 2

	// AggressivenessMax is the most aggressive filtering level and the
	// pipeline default.
	AggressivenessMax Aggressiveness = 3
)

// IsValid reports whether a is a recognised aggressiveness level.
func (a Aggressiveness) IsValid() bool {
	return a >= AggressivenessLow && a <= AggressivenessMax
}

// validSampleRates is the fixed set of supported sample rates in Hz.
var validSampleRates = map[int]bool{
	8000:  true,
	16000: true,
	32000: true,
	48000: true,
}

// validFrameDurations is the fixed set of supported frame durations.
var validFrameDurations = map[time.Duration]bool{
	10 * time.Millisecond: true,
	20 * time.Millisecond: true,
	30 * time.Millisecond: true,
}

// Config holds the parameters for a classifier. The (SampleRate,
// FrameDuration) pair determines the exact byte length every frame must have;
// combinations outside the supported sets are rejected at construction time,
// not per frame.
type Config struct {
	// SampleRate is the audio sample rate in Hz. One of 8000, 16000, 32000,
	// or 48000.
	SampleRate int

	// FrameDuration is the fixed duration of each frame. One of 10, 20, or
	// 30 ms.
	FrameDuration time.Duration

	// Aggressiveness selects the filtering level. The zero value is
	// AggressivenessLow; the config layer defaults new sessions to
	// AggressivenessMax.
	Aggressiveness Aggressiveness
}

// Validate checks that cfg is a supported combination.
func (cfg Config) Validate() error {
	if !validSampleRates[cfg.SampleRate] {
		return fmt.Errorf("%w: sample rate %d Hz (valid: 8000, 16000, 32000, 48000)", ErrInvalidConfig, cfg.SampleRate)
	}
	if !validFrameDurations[cfg.FrameDuration] {
		return fmt.Errorf("%w: frame duration %v (valid: 10ms, 20ms, 30ms)", ErrInvalidConfig, cfg.FrameDuration)
	}
	if !cfg.Aggressiveness.IsValid() {
		return fmt.Errorf("%w: aggressiveness %d (valid: 0–3)", ErrInvalidConfig, cfg.Aggressiveness)
	}
	return nil
}

// FrameBytes returns the byte length every frame must have under cfg.
func (cfg Config) FrameBytes() int {
	return audio.FrameSize(cfg.SampleRate, cfg.FrameDuration)
}

// Classifier makes a binary speech/non-speech decision for a single frame of
// raw little-endian mono 16-bit PCM. IsSpeech must not block and must be
// deterministic for a given frame and configuration.
type Classifier interface {
	// IsSpeech reports whether the frame contains speech. Returns
	// ErrInvalidFrame (wrapped) if the frame length does not match the
	// configured frame size.
	IsSpeech(frame []byte) (bool, error)
}
