package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parleyvoice/parley/pkg/provider/stt"
)

// Session owns all per-conversation state: the frame buffer fed by the
// transport, the segmenter, the orchestrator, and the conversation history.
// Sessions are fully independent of each other, so any number can run
// concurrently.
type Session struct {
	id string

	buffer       *FrameBuffer
	segmenter    *Segmenter
	orchestrator *Orchestrator
	history      *History

	onTurn func(*Result, error)
	log    *slog.Logger

	activeGauge ActiveGauge
}

// ActiveGauge tracks the number of live sessions. Implemented by the observe
// package; nil disables tracking.
type ActiveGauge interface {
	SessionStarted(ctx context.Context)
	SessionEnded(ctx context.Context)
}

// SessionOption is a functional option for configuring a Session.
type SessionOption func(*Session)

// WithTurnCallback installs a callback invoked after every processed turn,
// successful or not. The callback runs on the session's consumer goroutine;
// it should hand off promptly.
func WithTurnCallback(fn func(*Result, error)) SessionOption {
	return func(s *Session) { s.onTurn = fn }
}

// WithSessionLogger sets the structured logger. Default is slog.Default().
func WithSessionLogger(log *slog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithActiveGauge installs a live-session gauge updated by Run.
func WithActiveGauge(g ActiveGauge) SessionOption {
	return func(s *Session) { s.activeGauge = g }
}

// NewSession assembles a session from its parts. buffer, segmenter,
// orchestrator, and history must be non-nil.
func NewSession(buffer *FrameBuffer, segmenter *Segmenter, orchestrator *Orchestrator, history *History, opts ...SessionOption) (*Session, error) {
	if buffer == nil || segmenter == nil || orchestrator == nil || history == nil {
		return nil, fmt.Errorf("turn: session requires buffer, segmenter, orchestrator, and history")
	}
	s := &Session{
		id:           uuid.NewString(),
		buffer:       buffer,
		segmenter:    segmenter,
		orchestrator: orchestrator,
		history:      history,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("session_id", s.id)
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Buffer returns the frame buffer the transport should Put captured frames
// into.
func (s *Session) Buffer() *FrameBuffer { return s.buffer }

// History returns the session's conversation history.
func (s *Session) History() *History { return s.history }

// Run drives the consumer loop: frames are pulled from the buffer, pushed
// through the segmenter, and each completed utterance is processed as one
// turn. Per-turn errors are reported through the turn callback and logged;
// the loop itself keeps listening.
//
// Run returns nil when the buffer is closed and drained (a final
// mid-speech utterance is flushed and processed first), or ctx.Err() on
// cancellation. A classifier error is fatal to the session: it means frames
// do not match the configured audio format.
func (s *Session) Run(ctx context.Context) error {
	s.log.Info("session started")
	if s.activeGauge != nil {
		s.activeGauge.SessionStarted(ctx)
		defer s.activeGauge.SessionEnded(context.WithoutCancel(ctx))
	}

	for {
		frame, err := s.buffer.Get(ctx)
		if err != nil {
			if errors.Is(err, ErrBufferClosed) {
				if utt := s.segmenter.Flush(); utt != nil {
					s.processTurn(ctx, utt)
				}
				s.log.Info("session ended", "history_len", s.history.Len())
				return nil
			}
			return err
		}

		utt, err := s.segmenter.Push(frame)
		if err != nil {
			return fmt.Errorf("turn: session %s: %w", s.id, err)
		}
		if utt == nil {
			continue
		}
		s.processTurn(ctx, utt)
	}
}

// processTurn runs one utterance through the orchestrator and dispatches the
// outcome. Errors do not stop the session; the loop returns to listening.
func (s *Session) processTurn(ctx context.Context, utt *Utterance) {
	started := time.Now()
	res, err := s.orchestrator.ProcessTurn(ctx, utt)
	switch {
	case err == nil:
	case errors.Is(err, stt.ErrNoSpeech):
		// The segmenter heard something the backend could not transcribe.
		// Not a real failure; keep listening without reporting.
		s.log.Debug("utterance without transcribable speech", "utterance", utt.Duration())
		return
	default:
		s.log.Error("turn failed", "error", err, "elapsed", time.Since(started))
	}
	if s.onTurn != nil {
		s.onTurn(res, err)
	}
}
