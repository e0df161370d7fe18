package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Unknown
// names produce a warning, not an error, so third-party compatible endpoints
// still work.
var ValidProviderNames = map[string][]string{
	"stt":        {"openai", "whisper"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"tts":        {"elevenlabs"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	// Seeded before decoding because an explicit 0 (least aggressive) is a
	// valid setting that ApplyDefaults could not tell apart from "unset".
	cfg.Audio.VADAggressiveness = 3
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills in the documented defaults for zero-valued fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.InputCodec == "" {
		cfg.Audio.InputCodec = CodecPCM
	}
	if cfg.Audio.FrameMs == 0 {
		// Opus framing has no 30 ms mode; use the longest mode it supports.
		if cfg.Audio.InputCodec == CodecOpus {
			cfg.Audio.FrameMs = 20
		} else {
			cfg.Audio.FrameMs = 30
		}
	}
	if cfg.Audio.EndSilenceMs == 0 {
		cfg.Audio.EndSilenceMs = 800
	}
	if cfg.Audio.BufferFrames == 0 {
		cfg.Audio.BufferFrames = 100
	}
	if cfg.Agent.HistoryWindow == 0 {
		cfg.Agent.HistoryWindow = 10
	}
	if cfg.Memory.EmbeddingDimensions == 0 {
		cfg.Memory.EmbeddingDimensions = 1536
	}
	if cfg.Memory.RetrievalTopK == 0 {
		cfg.Memory.RetrievalTopK = 4
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	switch cfg.Audio.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is invalid; valid values: 8000, 16000, 32000, 48000", cfg.Audio.SampleRate))
	}
	switch cfg.Audio.FrameMs {
	case 10, 20, 30:
	default:
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: 10, 20, 30", cfg.Audio.FrameMs))
	}
	if cfg.Audio.VADAggressiveness < 0 || cfg.Audio.VADAggressiveness > 3 {
		errs = append(errs, fmt.Errorf("audio.vad_aggressiveness %d is out of range [0, 3]", cfg.Audio.VADAggressiveness))
	}
	if cfg.Audio.EndSilenceMs < cfg.Audio.FrameMs {
		errs = append(errs, fmt.Errorf("audio.end_silence_ms %d must be at least one frame (%d ms)", cfg.Audio.EndSilenceMs, cfg.Audio.FrameMs))
	}
	if cfg.Audio.BufferFrames < 1 {
		errs = append(errs, fmt.Errorf("audio.buffer_frames %d must be at least 1", cfg.Audio.BufferFrames))
	}
	if !cfg.Audio.InputCodec.IsValid() {
		errs = append(errs, fmt.Errorf("audio.input_codec %q is invalid; valid values: pcm, opus", cfg.Audio.InputCodec))
	}
	if cfg.Audio.InputCodec == CodecOpus && cfg.Audio.FrameMs == 30 {
		errs = append(errs, errors.New("audio.frame_ms 30 is not available with input_codec opus; use 10 or 20"))
	}
	if cfg.Audio.InputCodec == CodecOpus && cfg.Audio.SampleRate == 32000 {
		errs = append(errs, errors.New("audio.sample_rate 32000 is not available with input_codec opus; use 8000, 16000, or 48000"))
	}

	if cfg.Agent.SystemPrompt == "" {
		errs = append(errs, errors.New("agent.system_prompt is required"))
	}
	if sf := cfg.Agent.Voice.SpeedFactor; sf != 0 && (sf < 0.5 || sf > 2.0) {
		errs = append(errs, fmt.Errorf("agent.voice.speed_factor %.2f is out of range [0.5, 2.0]", sf))
	}
	for i, kw := range cfg.Agent.Keywords {
		if kw == "" {
			errs = append(errs, fmt.Errorf("agent.keywords[%d] is empty", i))
		}
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}

	if cfg.Memory.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("memory.postgres_dsn is set but providers.embeddings is not configured"))
	}
	if cfg.Memory.PostgresDSN == "" && cfg.Providers.Embeddings.Name != "" {
		slog.Warn("providers.embeddings is configured but memory.postgres_dsn is empty; retrieval stays disabled")
	}
	if cfg.Memory.RetrievalTopK < 1 {
		errs = append(errs, fmt.Errorf("memory.retrieval_top_k %d must be at least 1", cfg.Memory.RetrievalTopK))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames] for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or a compatible third-party endpoint",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
