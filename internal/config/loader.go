package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/voxenlabs/voxen/internal/skill/mcpskill"
)

// ValidLLMProviders lists the planner backends the any-llm integration knows
// about. Used by [Validate] to warn about unrecognised provider names.
var ValidLLMProviders = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Capture
	if len(cfg.Capture.Satellites) == 0 {
		errs = append(errs, errors.New("capture.satellites must list at least one source"))
	}
	satNamesSeen := make(map[string]int, len(cfg.Capture.Satellites))
	for i, sat := range cfg.Capture.Satellites {
		prefix := fmt.Sprintf("capture.satellites[%d]", i)
		if sat.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := satNamesSeen[sat.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of capture.satellites[%d]", prefix, sat.Name, prev))
			}
			satNamesSeen[sat.Name] = i
		}
		if sat.Endpoint == "" {
			errs = append(errs, fmt.Errorf("%s.endpoint is required", prefix))
		}
	}

	// Gate
	if cfg.Gate.SpeechThreshold < 0 || cfg.Gate.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("gate.speech_threshold %.2f is out of range [0, 1]", cfg.Gate.SpeechThreshold))
	}
	if cfg.Gate.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("gate.chunk_size %d must not be negative", cfg.Gate.ChunkSize))
	}
	if cfg.Gate.SilenceChunks < 0 {
		errs = append(errs, fmt.Errorf("gate.silence_chunks %d must not be negative", cfg.Gate.SilenceChunks))
	}

	// Speaker identification
	if cfg.Speaker.Embedder != "" {
		if cfg.Speaker.Store != "" && !cfg.Speaker.Store.IsValid() {
			errs = append(errs, fmt.Errorf("speaker.store %q is invalid; valid values: file, postgres", cfg.Speaker.Store))
		}
		if cfg.Speaker.Store == StoreFile && cfg.Speaker.FilePath == "" {
			errs = append(errs, errors.New("speaker.file_path is required when speaker.store is file"))
		}
		if cfg.Speaker.Store == StorePostgres && cfg.Speaker.PostgresDSN == "" {
			errs = append(errs, errors.New("speaker.postgres_dsn is required when speaker.store is postgres"))
		}
		if cfg.Speaker.Store == StorePostgres && cfg.Speaker.EmbeddingDimensions <= 0 {
			errs = append(errs, errors.New("speaker.embedding_dimensions is required when speaker.store is postgres"))
		}
		if cfg.Speaker.DefaultThreshold < 0 || cfg.Speaker.DefaultThreshold >= 1 {
			errs = append(errs, fmt.Errorf("speaker.default_threshold %.2f is out of range [0, 1)", cfg.Speaker.DefaultThreshold))
		}
	} else if cfg.Speaker.Store != "" || cfg.Speaker.PostgresDSN != "" || cfg.Speaker.FilePath != "" {
		slog.Warn("speaker store is configured but speaker.embedder is empty; identification is disabled")
	}

	// STT
	if cfg.STT.ModelPath == "" {
		errs = append(errs, errors.New("stt.model_path is required"))
	}
	if cfg.STT.Threads < 0 {
		errs = append(errs, fmt.Errorf("stt.threads %d must not be negative", cfg.STT.Threads))
	}

	// LLM
	if cfg.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider is required"))
	} else if !slices.Contains(ValidLLMProviders, cfg.LLM.Provider) {
		slog.Warn("unknown LLM provider name — may be a typo or third-party provider",
			"name", cfg.LLM.Provider,
			"known", ValidLLMProviders,
		)
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}

	// Skill servers
	srvNamesSeen := make(map[string]int, len(cfg.Skills.Servers))
	for i, srv := range cfg.Skills.Servers {
		prefix := fmt.Sprintf("skills.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := srvNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of skills.servers[%d]", prefix, srv.Name, prev))
			}
			srvNamesSeen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcpskill.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcpskill.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}
	if cfg.Skills.CallTimeout < 0 {
		errs = append(errs, errors.New("skills.call_timeout must not be negative"))
	}
	if cfg.Skills.ConfirmationTTL < 0 {
		errs = append(errs, errors.New("skills.confirmation_ttl must not be negative"))
	}

	// Pipeline
	if cfg.Pipeline.BufferSeconds < 0 {
		errs = append(errs, errors.New("pipeline.buffer_seconds must not be negative"))
	}
	if cfg.Pipeline.Lookback < 0 {
		errs = append(errs, errors.New("pipeline.lookback must not be negative"))
	}
	if cfg.Pipeline.HistoryTurns < 0 {
		errs = append(errs, errors.New("pipeline.history_turns must not be negative"))
	}

	return errors.Join(errs...)
}
