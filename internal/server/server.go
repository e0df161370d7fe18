// Package server exposes the voice agent over HTTP: a /ws endpoint that
// carries one full-duplex voice session per WebSocket connection, plus the
// operational endpoints /healthz, /readyz, and /metrics.
//
// Audio frames arrive as binary WebSocket messages (raw PCM or Opus,
// depending on configuration). The server segments them, runs each completed
// utterance through the turn pipeline, and answers with a JSON turn event
// followed by the synthesized reply audio as a binary message.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parleyvoice/parley/internal/config"
	"github.com/parleyvoice/parley/internal/health"
	"github.com/parleyvoice/parley/internal/observe"
	"github.com/parleyvoice/parley/internal/turn"
	"github.com/parleyvoice/parley/pkg/provider/stt"
	"github.com/parleyvoice/parley/pkg/provider/tts"
	"github.com/parleyvoice/parley/pkg/types"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Pipeline bundles the per-turn collaborators shared by all sessions.
// Corrector may be nil.
type Pipeline struct {
	Transcriber stt.Transcriber
	Responder   turn.Responder
	Synthesizer tts.Synthesizer
	Corrector   turn.Corrector
}

// Server hosts the WebSocket voice transport and the operational endpoints.
type Server struct {
	cfg      *config.Config
	pipeline Pipeline
	voice    types.VoiceProfile

	metrics *observe.Metrics
	healthh *health.Handler
	log     *slog.Logger

	httpSrv *http.Server
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithMetrics installs the metrics instruments. When absent, sessions run
// unmetered.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the structured logger. Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithReadyCheck registers a named readiness check served on /readyz.
func WithReadyCheck(name string, probe health.CheckFunc) Option {
	return func(s *Server) { s.healthh.AddCheck(name, probe) }
}

// New assembles a [Server] from the configuration and the shared pipeline
// collaborators.
func New(cfg *config.Config, p Pipeline, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server: config must not be nil")
	}
	if p.Transcriber == nil || p.Responder == nil || p.Synthesizer == nil {
		return nil, fmt.Errorf("server: pipeline requires transcriber, responder, and synthesizer")
	}

	s := &Server{
		cfg:      cfg,
		pipeline: p,
		voice: types.VoiceProfile{
			ID:          cfg.Agent.Voice.VoiceID,
			Name:        cfg.Agent.Voice.Name,
			SpeedFactor: cfg.Agent.Voice.SpeedFactor,
		},
		healthh: health.New(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.healthh.Register(mux)

	s.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the server's HTTP handler, for tests that mount it on an
// httptest server.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully. TLS is used
// when the config carries certificate paths.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", s.httpSrv.Addr, "tls", s.cfg.Server.TLS != nil)
		var err error
		if tls := s.cfg.Server.TLS; tls != nil {
			err = s.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}
