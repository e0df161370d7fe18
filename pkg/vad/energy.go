package vad

import (
	"fmt"

	"github.com/parleyvoice/parley/pkg/audio"
)

// rmsThresholds maps each aggressiveness level to the RMS energy (in 16-bit
// PCM units, max 32 767) a frame must exceed to be classified as speech.
// Values were tuned against 16 kHz close-mic recordings; level 3 corresponds
// to clear voiced speech, level 0 admits whispers and room tone.
var rmsThresholds = map[Aggressiveness]float64{
	AggressivenessLow:      250,
	AggressivenessModerate: 325,
	AggressivenessHigh:     425,
	AggressivenessMax:      550,
}

// Energy is an RMS-energy voice activity classifier. It classifies a frame
// as speech when its root-mean-square amplitude exceeds the threshold for the
// configured aggressiveness level.
//
// Energy is stateless and safe for concurrent use; the same frame always
// yields the same result under the same configuration.
type Energy struct {
	threshold  float64
	frameBytes int
}

// Compile-time assertion that Energy satisfies Classifier.
var _ Classifier = (*Energy)(nil)

// NewEnergy creates an energy classifier for the given configuration.
// Returns ErrInvalidConfig (wrapped) for unsupported sample-rate, frame
// duration, or aggressiveness values.
func NewEnergy(cfg Config) (*Energy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Energy{
		threshold:  rmsThresholds[cfg.Aggressiveness],
		frameBytes: cfg.FrameBytes(),
	}, nil
}

// IsSpeech implements Classifier.
func (e *Energy) IsSpeech(frame []byte) (bool, error) {
	if len(frame) != e.frameBytes {
		return false, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidFrame, len(frame), e.frameBytes)
	}
	return audio.RMS(frame) >= e.threshold, nil
}
