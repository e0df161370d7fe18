package turn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parleyvoice/parley/pkg/audio"
	"github.com/parleyvoice/parley/pkg/provider/stt"
	"github.com/parleyvoice/parley/pkg/provider/tts"
	"github.com/parleyvoice/parley/pkg/types"
)

// defaultHistoryWindow is the number of recent conversation messages handed
// to the responder along with the system instruction.
const defaultHistoryWindow = 10

// Responder generates the assistant's reply from the conversation so far.
// The last message in the slice is the user turn that drives the reply.
// Implementations may perform retrieval against a knowledge base; that is
// opaque to the orchestrator.
type Responder interface {
	Respond(ctx context.Context, messages []types.Message) (string, error)
}

// Player emits synthesized PCM audio to the caller, either by local playback
// or by transmitting it over the session's transport.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
}

// Corrector post-processes a raw transcript before it enters history, e.g.
// fixing phonetically mangled domain keywords.
type Corrector interface {
	Correct(text string) string
}

// StageRecorder receives per-stage timing observations and turn outcomes.
// Implemented by the observe package; a nil recorder disables metrics.
type StageRecorder interface {
	ObserveStage(ctx context.Context, stage string, d time.Duration)
	CountTurn(ctx context.Context, status string)
}

// Timings holds the wall-clock duration of each collaborator stage. Every
// stage that ran has its field set, regardless of whether a later stage
// failed.
type Timings struct {
	Transcription time.Duration
	Generation    time.Duration
	Synthesis     time.Duration
}

// Result is the outcome of one processed turn. On failure the fields filled
// so far are still valid: UserText survives a generation failure, ReplyText
// survives a synthesis failure.
type Result struct {
	// UserText is the transcribed (and corrected) user utterance.
	UserText string

	// ReplyText is the generated assistant reply.
	ReplyText string

	// Audio is the synthesized reply as raw PCM, nil when synthesis failed
	// or was skipped.
	Audio []byte

	// UtteranceDuration is the audio length of the input utterance.
	UtteranceDuration time.Duration

	// Timings reports per-stage durations for the stages that ran.
	Timings Timings
}

// Orchestrator sequences one completed utterance through transcription,
// reply generation, speech synthesis, and playback, updating the session
// history along the way.
//
// The turn protocol is single-turn-at-a-time: ProcessTurn holds a mutex for
// the whole turn, so a second utterance waits until the current turn has
// fully finished (including playback).
type Orchestrator struct {
	transcriber stt.Transcriber
	responder   Responder
	synthesizer tts.Synthesizer
	player      Player
	history     *History

	voice         types.VoiceProfile
	sampleRate    int
	historyWindow int
	corrector     Corrector
	recorder      StageRecorder
	log           *slog.Logger

	mu sync.Mutex
}

// OrchestratorOption is a functional option for configuring an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithVoice selects the TTS voice profile. Default is the synthesizer's zero
// profile.
func WithVoice(v types.VoiceProfile) OrchestratorOption {
	return func(o *Orchestrator) { o.voice = v }
}

// WithSampleRate sets the PCM sample rate of incoming utterances in Hz.
// Default is 16000.
func WithSampleRate(rate int) OrchestratorOption {
	return func(o *Orchestrator) { o.sampleRate = rate }
}

// WithHistoryWindow sets how many recent conversation messages accompany the
// system instruction into generation. Default is 10; zero or negative passes
// the full history.
func WithHistoryWindow(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.historyWindow = n }
}

// WithCorrector installs a transcript corrector applied between transcription
// and the history append.
func WithCorrector(c Corrector) OrchestratorOption {
	return func(o *Orchestrator) { o.corrector = c }
}

// WithStageRecorder installs a metrics recorder for stage timings and turn
// outcomes.
func WithStageRecorder(r StageRecorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the structured logger. Default is slog.Default().
func WithLogger(log *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.log = log }
}

// NewOrchestrator wires the collaborator interfaces around a session history.
// transcriber, responder, synthesizer, player, and history must be non-nil.
func NewOrchestrator(
	transcriber stt.Transcriber,
	responder Responder,
	synthesizer tts.Synthesizer,
	player Player,
	history *History,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if transcriber == nil || responder == nil || synthesizer == nil || player == nil {
		return nil, fmt.Errorf("turn: orchestrator requires all collaborators")
	}
	if history == nil {
		return nil, fmt.Errorf("turn: orchestrator requires a history")
	}

	o := &Orchestrator{
		transcriber:   transcriber,
		responder:     responder,
		synthesizer:   synthesizer,
		player:        player,
		history:       history,
		sampleRate:    audio.DefaultSampleRate,
		historyWindow: defaultHistoryWindow,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ProcessTurn runs the strict stage sequence for one utterance:
// transcribe, append user message, generate, append assistant message,
// synthesize, play. Each stage is gated on the previous one succeeding.
//
// On failure the returned Result still carries everything produced so far,
// including the timings of every stage that ran. The error wraps the matching
// stage sentinel (ErrTranscription, ErrGeneration, ErrSynthesis,
// ErrPlayback).
func (o *Orchestrator) ProcessTurn(ctx context.Context, utt *Utterance) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := &Result{UtteranceDuration: utt.Duration()}

	wav := audio.EncodeWAV(utt.PCM(), o.sampleRate, 1)

	start := time.Now()
	text, err := o.transcriber.Transcribe(ctx, wav)
	res.Timings.Transcription = time.Since(start)
	o.observe(ctx, "transcription", res.Timings.Transcription)
	if err != nil {
		o.countTurn(ctx, "transcription_error")
		return res, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	if o.corrector != nil {
		text = o.corrector.Correct(text)
	}
	res.UserText = text

	o.history.AppendUser(text)

	start = time.Now()
	reply, err := o.responder.Respond(ctx, o.history.Window(o.historyWindow))
	res.Timings.Generation = time.Since(start)
	o.observe(ctx, "generation", res.Timings.Generation)
	if err != nil {
		o.countTurn(ctx, "generation_error")
		return res, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	res.ReplyText = reply

	o.history.AppendAssistant(reply)

	start = time.Now()
	pcm, err := o.synthesizer.Synthesize(ctx, reply, o.voice)
	res.Timings.Synthesis = time.Since(start)
	o.observe(ctx, "synthesis", res.Timings.Synthesis)
	if err != nil {
		o.countTurn(ctx, "synthesis_error")
		return res, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	res.Audio = pcm

	if err := o.player.Play(ctx, pcm); err != nil {
		o.countTurn(ctx, "playback_error")
		return res, fmt.Errorf("%w: %w", ErrPlayback, err)
	}

	o.countTurn(ctx, "ok")
	o.log.Debug("turn completed",
		"user_chars", len(res.UserText),
		"reply_chars", len(res.ReplyText),
		"transcription", res.Timings.Transcription,
		"generation", res.Timings.Generation,
		"synthesis", res.Timings.Synthesis,
	)
	return res, nil
}

func (o *Orchestrator) observe(ctx context.Context, stage string, d time.Duration) {
	if o.recorder != nil {
		o.recorder.ObserveStage(ctx, stage, d)
	}
}

func (o *Orchestrator) countTurn(ctx context.Context, status string) {
	if o.recorder != nil {
		o.recorder.CountTurn(ctx, status)
	}
}
