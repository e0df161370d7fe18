// Package tts defines the Synthesizer interface for Text-to-Speech backends.
//
// A synthesizer wraps a speech synthesis service (e.g., ElevenLabs, Google
// Cloud TTS, or a local Piper instance) and converts a complete reply text
// into raw PCM audio in a single call. Batch synthesis matches the turn
// engine's contract: the assistant reply is fully generated before playback
// starts.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/parleyvoice/parley/pkg/types"
)

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize converts text into raw 16-bit little-endian PCM audio using
	// the given voice profile. The sample rate is a property of the provider
	// configuration; 16 kHz mono is the pipeline default.
	//
	// Returns an error if synthesis fails or if ctx is cancelled before the
	// audio is complete. An empty text input is an error.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error)

	// ListVoices returns all voice profiles available from this backend. The
	// list reflects the service's current catalogue and may change between
	// calls.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
