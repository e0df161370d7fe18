package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/parleyvoice/parley/internal/config"
	"github.com/parleyvoice/parley/internal/turn"
	"github.com/parleyvoice/parley/pkg/audio"
	"github.com/parleyvoice/parley/pkg/vad"
)

// turnEvent is the JSON message sent after every processed turn. The
// synthesized reply audio is sent as a separate binary message immediately
// before its event; turns never interleave, so ordering is unambiguous.
type turnEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	UserText  string      `json:"user_text"`
	ReplyText string      `json:"reply_text,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timings   turnTimings `json:"timings_ms"`
}

// turnTimings is the per-stage latency block of a [turnEvent], in
// milliseconds.
type turnTimings struct {
	Transcription int64 `json:"transcription"`
	Generation    int64 `json:"generation"`
	Synthesis     int64 `json:"synthesis"`
}

// control is the JSON shape of client text messages.
type control struct {
	Type string `json:"type"`
}

// wsPlayer emits synthesized PCM to the peer as a binary message. It
// implements the turn engine's Player interface.
type wsPlayer struct {
	conn *websocket.Conn
}

func (p *wsPlayer) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if err := p.conn.Write(ctx, websocket.MessageBinary, pcm); err != nil {
		return fmt.Errorf("server: write reply audio: %w", err)
	}
	return nil
}

// handleWS upgrades the request and runs one voice session for the lifetime
// of the connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	if err := s.runSession(r.Context(), conn); err != nil {
		s.log.Error("session terminated", "error", err)
		conn.Close(websocket.StatusInternalError, "session error")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "session complete")
}

// runSession assembles the per-connection pipeline and drives the capture
// and consumer loops until the peer disconnects.
func (s *Server) runSession(ctx context.Context, conn *websocket.Conn) error {
	audioCfg := s.cfg.Audio

	classifier, err := vad.NewEnergy(vad.Config{
		SampleRate:     audioCfg.SampleRate,
		FrameDuration:  audioCfg.FrameDuration(),
		Aggressiveness: vad.Aggressiveness(audioCfg.VADAggressiveness),
	})
	if err != nil {
		return fmt.Errorf("server: classifier: %w", err)
	}
	segmenter, err := turn.NewSegmenter(classifier, audioCfg.EndSilence(), audioCfg.FrameDuration())
	if err != nil {
		return fmt.Errorf("server: segmenter: %w", err)
	}
	buffer, err := turn.NewFrameBuffer(audioCfg.BufferFrames)
	if err != nil {
		return fmt.Errorf("server: frame buffer: %w", err)
	}

	history := turn.NewHistory(s.cfg.Agent.SystemPrompt)

	orchOpts := []turn.OrchestratorOption{
		turn.WithVoice(s.voice),
		turn.WithSampleRate(audioCfg.SampleRate),
		turn.WithHistoryWindow(s.cfg.Agent.HistoryWindow),
		turn.WithLogger(s.log),
	}
	if s.pipeline.Corrector != nil {
		orchOpts = append(orchOpts, turn.WithCorrector(s.pipeline.Corrector))
	}
	if s.metrics != nil {
		orchOpts = append(orchOpts, turn.WithStageRecorder(s.metrics))
	}
	player := &wsPlayer{conn: conn}
	orchestrator, err := turn.NewOrchestrator(
		s.pipeline.Transcriber, s.pipeline.Responder, s.pipeline.Synthesizer,
		player, history, orchOpts...)
	if err != nil {
		return fmt.Errorf("server: orchestrator: %w", err)
	}

	g, sessCtx := errgroup.WithContext(ctx)

	var sessionID string
	sessOpts := []turn.SessionOption{
		turn.WithSessionLogger(s.log),
		turn.WithTurnCallback(func(res *turn.Result, turnErr error) {
			if s.metrics != nil && res != nil && res.UtteranceDuration > 0 {
				s.metrics.ObserveUtterance(sessCtx, res.UtteranceDuration)
			}
			if err := s.writeTurnEvent(sessCtx, conn, sessionID, res, turnErr); err != nil {
				s.log.Warn("turn event not delivered", "error", err)
			}
		}),
	}
	if s.metrics != nil {
		sessOpts = append(sessOpts, turn.WithActiveGauge(s.metrics))
	}
	session, err := turn.NewSession(buffer, segmenter, orchestrator, history, sessOpts...)
	if err != nil {
		return fmt.Errorf("server: session: %w", err)
	}
	sessionID = session.ID()
	if s.metrics != nil {
		unwatch := s.metrics.WatchBufferDepth(session.ID(), buffer.Len)
		defer unwatch()
	}

	log := s.log.With("session", session.ID())
	log.Info("voice session connected",
		"codec", audioCfg.InputCodec,
		"sample_rate", audioCfg.SampleRate,
		"frame_ms", audioCfg.FrameMs,
	)

	g.Go(func() error {
		defer buffer.Close()
		return s.captureFrames(sessCtx, conn, buffer)
	})
	g.Go(func() error {
		return session.Run(sessCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("voice session closed", "turns", (history.Len()-1)/2)
	return nil
}

// captureFrames pumps incoming WebSocket messages into the frame buffer
// until the peer closes or sends an "end" control message. Binary messages
// carry one audio frame each; text messages carry JSON control.
func (s *Server) captureFrames(ctx context.Context, conn *websocket.Conn, buffer *turn.FrameBuffer) error {
	audioCfg := s.cfg.Audio
	frameBytes := audio.FrameSize(audioCfg.SampleRate, audioCfg.FrameDuration())

	var decoder *opusDecoder
	if audioCfg.InputCodec == config.CodecOpus {
		var err error
		decoder, err = newOpusDecoder(audioCfg.SampleRate, frameBytes/audio.BytesPerSample)
		if err != nil {
			return err
		}
	}

	var n int
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Abrupt disconnects end the session without failing it.
			s.log.Debug("capture read ended", "error", err)
			return nil
		}

		if typ == websocket.MessageText {
			var ctl control
			if err := json.Unmarshal(data, &ctl); err != nil {
				return fmt.Errorf("server: bad control message: %w", err)
			}
			if ctl.Type == "end" {
				return nil
			}
			continue
		}

		pcm := data
		if decoder != nil {
			if pcm, err = decoder.decode(data); err != nil {
				return err
			}
		}
		if len(pcm) != frameBytes {
			return fmt.Errorf("server: frame size %d bytes, want %d", len(pcm), frameBytes)
		}

		frame := audio.Frame{
			Data:       pcm,
			SampleRate: audioCfg.SampleRate,
			Channels:   1,
			Timestamp:  time.Duration(n) * audioCfg.FrameDuration(),
		}
		n++
		if err := buffer.Put(ctx, frame); err != nil {
			return err
		}
	}
}

// writeTurnEvent sends the JSON outcome of one turn to the peer.
func (s *Server) writeTurnEvent(ctx context.Context, conn *websocket.Conn, sessionID string, res *turn.Result, turnErr error) error {
	ev := turnEvent{Type: "turn", SessionID: sessionID}
	if res != nil {
		ev.UserText = res.UserText
		ev.ReplyText = res.ReplyText
		ev.Timings = turnTimings{
			Transcription: res.Timings.Transcription.Milliseconds(),
			Generation:    res.Timings.Generation.Milliseconds(),
			Synthesis:     res.Timings.Synthesis.Milliseconds(),
		}
	}
	if turnErr != nil {
		ev.Error = turnErr.Error()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("server: encode turn event: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("server: write turn event: %w", err)
	}
	return nil
}
