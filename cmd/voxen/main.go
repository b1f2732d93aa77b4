// Command voxen is the main entry point for the Voxen voice assistant server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxenlabs/voxen/internal/config"
	"github.com/voxenlabs/voxen/internal/health"
	"github.com/voxenlabs/voxen/internal/observe"
	"github.com/voxenlabs/voxen/internal/pipeline"
	"github.com/voxenlabs/voxen/internal/session"
	"github.com/voxenlabs/voxen/internal/skill"
	"github.com/voxenlabs/voxen/internal/skill/mcpskill"
	"github.com/voxenlabs/voxen/internal/speaker"
	speakerpg "github.com/voxenlabs/voxen/internal/speaker/postgres"
	"github.com/voxenlabs/voxen/internal/vadgate"
	"github.com/voxenlabs/voxen/pkg/capture"
	"github.com/voxenlabs/voxen/pkg/capture/satellite"
	diarizews "github.com/voxenlabs/voxen/pkg/provider/diarize/ws"
	"github.com/voxenlabs/voxen/pkg/provider/llm"
	"github.com/voxenlabs/voxen/pkg/provider/llm/anyllm"
	"github.com/voxenlabs/voxen/pkg/provider/stt/whisper"
	"github.com/voxenlabs/voxen/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", "", "optional .env file with API keys")
	flag.Parse()

	// API keys live in the environment, not the config file.
	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			fmt.Fprintf(os.Stderr, "voxen: load env file %q: %v\n", *envPath, err)
			return 1
		}
	} else {
		_ = godotenv.Load() // .env in the working directory, if present
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxen: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxen: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxen starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Capture sources ───────────────────────────────────────────────────────
	sources := make([]capture.Source, 0, len(cfg.Capture.Satellites))
	for _, sat := range cfg.Capture.Satellites {
		var opts []satellite.Option
		if sat.APIKey != "" {
			opts = append(opts, satellite.WithAPIKey(sat.APIKey))
		}
		opts = append(opts, satellite.WithLogger(logger))
		src, err := satellite.New(sat.Endpoint, sat.Name, opts...)
		if err != nil {
			slog.Error("failed to create capture source", "name", sat.Name, "err", err)
			return 1
		}
		sources = append(sources, src)
	}

	// ── Speech to text ────────────────────────────────────────────────────────
	var whisperOpts []whisper.Option
	if cfg.STT.Language != "" {
		whisperOpts = append(whisperOpts, whisper.WithLanguage(cfg.STT.Language))
	}
	if cfg.STT.Threads > 0 {
		whisperOpts = append(whisperOpts, whisper.WithThreads(uint(cfg.STT.Threads)))
	}
	transcriber, err := whisper.New(cfg.STT.ModelPath, whisperOpts...)
	if err != nil {
		slog.Error("failed to load whisper model", "path", cfg.STT.ModelPath, "err", err)
		return 1
	}
	defer transcriber.Close()

	// ── Planner ───────────────────────────────────────────────────────────────
	planner, err := buildLLM(cfg.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "provider", cfg.LLM.Provider, "err", err)
		return 1
	}

	// ── Speaker identification (optional) ─────────────────────────────────────
	matcher, store, err := buildMatcher(ctx, cfg.Speaker)
	if err != nil {
		slog.Error("failed to initialise speaker identification", "err", err)
		return 1
	}

	// ── Skills ────────────────────────────────────────────────────────────────
	registry := skill.NewRegistry()
	bridge := mcpskill.New()
	defer func() {
		if err := bridge.Close(); err != nil {
			slog.Warn("mcp bridge close error", "err", err)
		}
	}()
	for _, srv := range cfg.Skills.Servers {
		err := bridge.RegisterServer(ctx, mcpskill.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}, registry)
		if err != nil {
			slog.Error("failed to register mcp server", "name", srv.Name, "err", err)
			return 1
		}
		slog.Info("mcp server connected", "name", srv.Name, "transport", srv.Transport)
	}

	confirmations := skill.NewConfirmationGate(cfg.Skills.ConfirmationTTL)
	dispatcherOpts := []skill.DispatcherOption{skill.WithDispatchLogger(logger)}
	if cfg.Skills.CallTimeout > 0 {
		dispatcherOpts = append(dispatcherOpts, skill.WithCallTimeout(cfg.Skills.CallTimeout))
	}
	dispatcher := skill.NewDispatcher(registry, confirmations, dispatcherOpts...)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	pipe, err := pipeline.New(pipeline.Config{
		Sources: sources,
		Scorer:  energy.New(),
		Gate: vadgate.Config{
			ChunkSize:       cfg.Gate.ChunkSize,
			SpeechThreshold: cfg.Gate.SpeechThreshold,
			SilenceChunks:   cfg.Gate.SilenceChunks,
		},
		Matcher:       matcher,
		Transcriber:   transcriber,
		LLM:           planner,
		Registry:      registry,
		Dispatcher:    dispatcher,
		Confirmations: confirmations,
		History:       session.NewHistory(cfg.Pipeline.HistoryTurns),
		Responder:     logResponder(logger),
		Metrics:       metrics,
		Logger:        logger,

		SystemPrompt:      cfg.LLM.SystemPrompt,
		BufferSeconds:     cfg.Pipeline.BufferSeconds,
		Lookback:          cfg.Pipeline.Lookback,
		IdentifyTimeout:   cfg.Pipeline.IdentifyTimeout,
		TranscribeTimeout: cfg.Pipeline.TranscribeTimeout,
		PlanTimeout:       cfg.Pipeline.PlanTimeout,
	})
	if err != nil {
		slog.Error("failed to assemble pipeline", "err", err)
		return 1
	}

	// ── HTTP server: health and metrics ───────────────────────────────────────
	httpServer := startHTTPServer(cfg.Server.ListenAddr, metrics, store)

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := pipe.Run(ctx); err != nil {
		slog.Error("pipeline error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// version is overridden at build time via -ldflags.
var version = "dev"

// ── Component wiring ──────────────────────────────────────────────────────────

// buildLLM creates the planner provider from its config section. The API key
// is read from the environment variable named in the config.
func buildLLM(cfg config.LLMConfig) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if cfg.APIKeyEnv != "" {
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("environment variable %s is empty", cfg.APIKeyEnv)
		}
		opts = append(opts, anyllmlib.WithAPIKey(key))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	return anyllm.New(cfg.Provider, cfg.Model, opts...)
}

// buildMatcher creates the speaker identification stack when an embedder is
// configured. Returns a nil matcher when identification is disabled; the
// pipeline then treats every utterance as unidentified.
func buildMatcher(ctx context.Context, cfg config.SpeakerConfig) (*speaker.Matcher, speaker.Store, error) {
	if cfg.Embedder == "" {
		slog.Info("speaker identification disabled (no embedder configured)")
		return nil, nil, nil
	}

	var wsOpts []diarizews.Option
	if cfg.EmbedderAPIKey != "" {
		wsOpts = append(wsOpts, diarizews.WithAPIKey(cfg.EmbedderAPIKey))
	}
	if cfg.EmbeddingDimensions > 0 {
		wsOpts = append(wsOpts, diarizews.WithDimensions(cfg.EmbeddingDimensions))
	}
	diarizer, err := diarizews.New(cfg.Embedder, wsOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create embedder client: %w", err)
	}

	var store speaker.Store
	switch cfg.Store {
	case config.StorePostgres:
		store, err = speakerpg.New(ctx, cfg.PostgresDSN, cfg.EmbeddingDimensions)
	default:
		store, err = speaker.NewFileStore(cfg.FilePath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create speaker store: %w", err)
	}

	matcher, err := speaker.New(ctx, diarizer, store, speaker.Config{
		DefaultThreshold:     cfg.DefaultThreshold,
		MinEnrollmentSamples: cfg.MinEnrollmentSamples,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create matcher: %w", err)
	}
	slog.Info("speaker identification enabled", "store", cfg.Store, "embedder", cfg.Embedder)
	return matcher, store, nil
}

// logResponder delivers replies to the log. Replace with a TTS responder once
// satellites grow a playback channel.
func logResponder(logger *slog.Logger) pipeline.Responder {
	return pipeline.ResponderFunc(func(_ context.Context, source, text string) error {
		logger.Info("assistant reply", "source", source, "text", text)
		return nil
	})
}

// startHTTPServer serves /healthz, /readyz and /metrics. Returns nil when no
// listen address is configured.
func startHTTPServer(addr string, metrics *observe.Metrics, store speaker.Store) *http.Server {
	if addr == "" {
		return nil
	}

	var checkers []health.Checker
	if store != nil {
		checkers = append(checkers, health.SpeakerStoreChecker(store))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           health.Instrument(metrics, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()
	slog.Info("http server listening", "addr", addr)
	return srv
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Voxen — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("LLM", cfg.LLM.Provider+" / "+cfg.LLM.Model)
	printEntry("STT model", cfg.STT.ModelPath)
	if cfg.Speaker.Embedder != "" {
		printEntry("Speaker ID", string(cfg.Speaker.Store))
	} else {
		printEntry("Speaker ID", "(disabled)")
	}
	fmt.Printf("║  Satellites      : %-19d ║\n", len(cfg.Capture.Satellites))
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.Skills.Servers))
	if cfg.Server.ListenAddr != "" {
		printEntry("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = "…" + value[len(value)-16:]
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

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
