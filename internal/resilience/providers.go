package resilience

import (
	"context"
	"errors"

	"github.com/parleyvoice/parley/pkg/provider/llm"
	"github.com/parleyvoice/parley/pkg/provider/stt"
	"github.com/parleyvoice/parley/pkg/provider/tts"
	"github.com/parleyvoice/parley/pkg/types"
)

// TranscriberFallback implements [stt.Transcriber] with automatic failover
// across multiple STT backends, each behind its own breaker.
//
// [stt.ErrNoSpeech] is treated as a successful call: silence in the audio is
// an answer, not a backend fault, so it neither trips the breaker nor
// triggers failover.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, settings Settings) *TranscriberFallback {
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, settings)}
}

// AddFallback registers an additional transcription backend.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe runs the utterance against the first healthy backend.
func (f *TranscriberFallback) Transcribe(ctx context.Context, wav []byte) (string, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, wav)
	}, isNoSpeech)
}

func isNoSpeech(err error) bool { return errors.Is(err, stt.ErrNoSpeech) }

// SynthesizerFallback implements [tts.Synthesizer] with automatic failover
// across multiple TTS backends, each behind its own breaker.
type SynthesizerFallback struct {
	group *FallbackGroup[tts.Synthesizer]
}

var _ tts.Synthesizer = (*SynthesizerFallback)(nil)

// NewSynthesizerFallback creates a [SynthesizerFallback] with primary as the
// preferred backend.
func NewSynthesizerFallback(primary tts.Synthesizer, primaryName string, settings Settings) *SynthesizerFallback {
	return &SynthesizerFallback{group: NewFallbackGroup(primary, primaryName, settings)}
}

// AddFallback registers an additional synthesis backend.
func (f *SynthesizerFallback) AddFallback(name string, s tts.Synthesizer) {
	f.group.AddFallback(name, s)
}

// Synthesize renders text with the first healthy backend. Note that a
// fallback backend may not know the requested voice; pick fallback voices
// that exist on every configured backend.
func (f *SynthesizerFallback) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	return ExecuteWithResult(f.group, func(s tts.Synthesizer) ([]byte, error) {
		return s.Synthesize(ctx, text, voice)
	}, nil)
}

// ListVoices returns the voices of the first healthy backend.
func (f *SynthesizerFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(s tts.Synthesizer) ([]types.VoiceProfile, error) {
		return s.ListVoices(ctx)
	}, nil)
}

// CompletionFallback implements [llm.Provider] with automatic failover
// across multiple language-model backends, each behind its own breaker.
type CompletionFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*CompletionFallback)(nil)

// NewCompletionFallback creates a [CompletionFallback] with primary as the
// preferred backend.
func NewCompletionFallback(primary llm.Provider, primaryName string, settings Settings) *CompletionFallback {
	return &CompletionFallback{group: NewFallbackGroup(primary, primaryName, settings)}
}

// AddFallback registers an additional language-model backend.
func (f *CompletionFallback) AddFallback(name string, p llm.Provider) {
	f.group.AddFallback(name, p)
}

// Complete generates a reply with the first healthy backend.
func (f *CompletionFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	}, nil)
}
