// Package mock provides a test double for the tts.Synthesizer interface.
//
// Set Audio to the PCM bytes every Synthesize call should return, or Err to
// make every call fail. Each call's text and voice are recorded.
package mock

import (
	"context"
	"sync"

	"github.com/parleyvoice/parley/pkg/provider/tts"
	"github.com/parleyvoice/parley/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesizer.Synthesize.
type SynthesizeCall struct {
	// Text is the reply text passed to Synthesize.
	Text string
	// Voice is the voice profile passed to Synthesize.
	Voice types.VoiceProfile
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Audio is the PCM returned by every Synthesize call.
	Audio []byte

	// Err, if non-nil, is returned by every Synthesize call instead of audio.
	Err error

	// Voices is returned by ListVoices.
	Voices []types.VoiceProfile

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	// Calls records every call to Synthesize in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns Audio, Err.
func (m *Synthesizer) Synthesize(_ context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, SynthesizeCall{Text: text, Voice: voice})
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Audio, nil
}

// ListVoices returns Voices, ListVoicesErr.
func (m *Synthesizer) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	if m.ListVoicesErr != nil {
		return nil, m.ListVoicesErr
	}
	return m.Voices, nil
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (m *Synthesizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (m *Synthesizer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
