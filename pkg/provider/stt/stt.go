// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A transcriber receives a complete utterance as WAV-encoded audio and returns
// the recognized text in a single call. Batch transcription fits the
// turn-taking model: the segmenter has already decided where the utterance
// ends, so there is no need for streaming partials.
//
// Implementations must be safe for concurrent use; the orchestrator may run
// transcriptions for independent sessions in parallel.
package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech is returned when the backend processed the audio successfully
// but found no transcribable speech in it. Callers typically skip the turn
// rather than treating this as a failure.
var ErrNoSpeech = errors.New("stt: no speech recognized")

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe converts a complete WAV-encoded utterance to text. The audio
	// must be 16-bit little-endian PCM wrapped in a RIFF/WAV container; most
	// backends additionally require 16 kHz mono.
	//
	// Returns the recognized text with surrounding whitespace trimmed, or
	// ErrNoSpeech if the audio contained nothing transcribable. Any other
	// error indicates a backend failure and the caller should treat the
	// utterance as lost.
	Transcribe(ctx context.Context, wav []byte) (string, error)
}
