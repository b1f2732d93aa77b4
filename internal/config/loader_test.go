package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/voxenlabs/voxen/internal/config"
)

// minimalYAML is the smallest config that passes validation.
const minimalYAML = `
capture:
  satellites:
    - name: kitchen
      endpoint: "ws://kitchen:8765/audio"
stt:
  model_path: /models/ggml-base.en.bin
llm:
  provider: openai
  model: gpt-4o
`

func TestLoadFromReader_Minimal(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Capture.Satellites[0].Name; got != "kitchen" {
		t.Errorf("satellite name = %q, want kitchen", got)
	}
	if got := cfg.LLM.Provider; got != "openai" {
		t.Errorf("llm provider = %q, want openai", got)
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: debug
capture:
  satellites:
    - name: kitchen
      endpoint: "ws://kitchen:8765/audio"
      api_key: secret
    - name: office
      endpoint: "ws://office:8765/audio"
gate:
  chunk_size: 480
  speech_threshold: 0.6
  silence_chunks: 12
speaker:
  embedder: "ws://localhost:9000/embed"
  embedding_dimensions: 192
  store: postgres
  postgres_dsn: "postgres://localhost/voxen"
  default_threshold: 0.45
  min_enrollment_samples: 8
stt:
  model_path: /models/ggml-base.en.bin
  language: en
  threads: 4
llm:
  provider: anthropic
  model: claude-sonnet-4-20250514
  api_key_env: ANTHROPIC_API_KEY
  system_prompt: "You live in a smart home."
skills:
  call_timeout: 15s
  confirmation_ttl: 45s
  servers:
    - name: home
      transport: stdio
      command: "/usr/local/bin/home-mcp --config /etc/home.json"
      env:
        HOME_TOKEN: abc
    - name: weather
      transport: streamable-http
      url: "https://mcp.example.com/mcp"
pipeline:
  buffer_seconds: 20
  lookback: 200ms
  history_turns: 24
  plan_timeout: 1m
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Skills.ConfirmationTTL != 45*time.Second {
		t.Errorf("confirmation_ttl = %v, want 45s", cfg.Skills.ConfirmationTTL)
	}
	if cfg.Pipeline.Lookback != 200*time.Millisecond {
		t.Errorf("lookback = %v, want 200ms", cfg.Pipeline.Lookback)
	}
	if cfg.Speaker.Store != config.StorePostgres {
		t.Errorf("speaker store = %q, want postgres", cfg.Speaker.Store)
	}
	if got := cfg.Skills.Servers[0].Env["HOME_TOKEN"]; got != "abc" {
		t.Errorf("server env HOME_TOKEN = %q, want abc", got)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
telemetry:
  enabled: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_NoSources(t *testing.T) {
	t.Parallel()
	yaml := `
stt:
  model_path: /models/ggml-base.en.bin
llm:
  provider: openai
  model: gpt-4o
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing capture sources, got nil")
	}
	if !strings.Contains(err.Error(), "capture.satellites") {
		t.Errorf("error should mention capture.satellites, got: %v", err)
	}
}

func TestValidate_DuplicateSatelliteNames(t *testing.T) {
	t.Parallel()
	yaml := `
capture:
  satellites:
    - name: kitchen
      endpoint: "ws://a:8765/audio"
    - name: kitchen
      endpoint: "ws://b:8765/audio"
stt:
  model_path: /models/ggml-base.en.bin
llm:
  provider: openai
  model: gpt-4o
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate satellite names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_PostgresStoreRequiresDSN(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
speaker:
  embedder: "ws://localhost:9000/embed"
  embedding_dimensions: 192
  store: postgres
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for postgres store without DSN, got nil")
	}
	if !strings.Contains(err.Error(), "postgres_dsn") {
		t.Errorf("error should mention postgres_dsn, got: %v", err)
	}
}

func TestValidate_StdioServerRequiresCommand(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
skills:
  servers:
    - name: home
      transport: stdio
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for stdio server without command, got nil")
	}
	if !strings.Contains(err.Error(), "command") {
		t.Errorf("error should mention command, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
capture:
  satellites:
    - name: ""
      endpoint: ""
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "name is required", "endpoint is required", "stt.model_path", "llm.provider"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}
