// Command parley runs the Parley voice conversation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/parleyvoice/parley/internal/config"
	"github.com/parleyvoice/parley/internal/observe"
	"github.com/parleyvoice/parley/internal/rag"
	"github.com/parleyvoice/parley/internal/resilience"
	"github.com/parleyvoice/parley/internal/server"
	"github.com/parleyvoice/parley/internal/transcript"
	"github.com/parleyvoice/parley/internal/turn"
	"github.com/parleyvoice/parley/pkg/memory/postgres"
	"github.com/parleyvoice/parley/pkg/provider/embeddings"
	embopenai "github.com/parleyvoice/parley/pkg/provider/embeddings/openai"
	"github.com/parleyvoice/parley/pkg/provider/llm"
	"github.com/parleyvoice/parley/pkg/provider/llm/anyllm"
	llmopenai "github.com/parleyvoice/parley/pkg/provider/llm/openai"
	"github.com/parleyvoice/parley/pkg/provider/stt"
	sttopenai "github.com/parleyvoice/parley/pkg/provider/stt/openai"
	"github.com/parleyvoice/parley/pkg/provider/stt/whisper"
	"github.com/parleyvoice/parley/pkg/provider/tts"
	"github.com/parleyvoice/parley/pkg/provider/tts/elevenlabs"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("parley starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	metricsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	transcriber, err := buildTranscriber(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "name", cfg.Providers.STT.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	completer, err := buildCompleter(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	synthesizer, err := buildSynthesizer(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to create tts provider", "name", cfg.Providers.TTS.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	// Circuit breakers guard the live provider calls so a flapping backend
	// fails fast instead of stalling every session.
	transcriber = resilience.NewTranscriberFallback(transcriber, cfg.Providers.STT.Name, resilience.Settings{Name: "stt"})
	synthesizer = resilience.NewSynthesizerFallback(synthesizer, cfg.Providers.TTS.Name, resilience.Settings{Name: "tts"})
	completer = resilience.NewCompletionFallback(completer, cfg.Providers.LLM.Name, resilience.Settings{Name: "llm"})

	// ── Retrieval memory (optional) ───────────────────────────────────────────
	var (
		responderOpts []rag.Option
		serverOpts    []server.Option
		index         *postgres.Index
	)
	if cfg.Memory.PostgresDSN != "" {
		embedder, err := buildEmbedder(cfg.Providers.Embeddings)
		if err != nil {
			slog.Error("failed to create embeddings provider", "name", cfg.Providers.Embeddings.Name, "err", err)
			return 1
		}

		index, err = postgres.New(ctx, cfg.Memory.PostgresDSN, cfg.Memory.EmbeddingDimensions)
		if err != nil {
			slog.Error("failed to connect to pgvector store", "err", err)
			return 1
		}
		defer index.Close()

		responderOpts = append(responderOpts,
			rag.WithRetrieval(embedder, index),
			rag.WithTopK(cfg.Memory.RetrievalTopK),
		)
		serverOpts = append(serverOpts, server.WithReadyCheck("postgres", index.Ping))
		slog.Info("retrieval memory enabled",
			"embedding_dimensions", cfg.Memory.EmbeddingDimensions,
			"top_k", cfg.Memory.RetrievalTopK,
		)
	}

	responder, err := rag.NewResponder(completer, responderOpts...)
	if err != nil {
		slog.Error("failed to create responder", "err", err)
		return 1
	}

	// ── Transcript correction (optional) ──────────────────────────────────────
	var corrector turn.Corrector
	if len(cfg.Agent.Keywords) > 0 {
		corrector, err = transcript.NewCorrector(cfg.Agent.Keywords)
		if err != nil {
			slog.Error("failed to create transcript corrector", "err", err)
			return 1
		}
		slog.Info("transcript correction enabled", "keywords", len(cfg.Agent.Keywords))
	}

	// ── Server ────────────────────────────────────────────────────────────────
	serverOpts = append(serverOpts,
		server.WithMetrics(metrics),
		server.WithLogger(logger),
	)
	srv, err := server.New(cfg, server.Pipeline{
		Transcriber: transcriber,
		Responder:   responder,
		Synthesizer: synthesizer,
		Corrector:   corrector,
	}, serverOpts...)
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

func buildTranscriber(entry config.ProviderEntry) (stt.Transcriber, error) {
	switch entry.Name {
	case "whisper":
		return whisper.New(entry.ModelPath)
	default:
		var opts []sttopenai.Option
		if entry.Model != "" {
			opts = append(opts, sttopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, opts...)
	}
}

func buildCompleter(entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	default:
		// anthropic, ollama, gemini, deepseek, mistral, groq and any other
		// name any-llm-go recognises.
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	}
}

func buildSynthesizer(entry config.ProviderEntry) (tts.Synthesizer, error) {
	var opts []elevenlabs.Option
	if entry.Model != "" {
		opts = append(opts, elevenlabs.WithModel(entry.Model))
	}
	return elevenlabs.New(entry.APIKey, opts...)
}

func buildEmbedder(entry config.ProviderEntry) (embeddings.Provider, error) {
	var opts []embopenai.Option
	if entry.BaseURL != "" {
		opts = append(opts, embopenai.WithBaseURL(entry.BaseURL))
	}
	return embopenai.New(entry.APIKey, entry.Model, opts...)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
