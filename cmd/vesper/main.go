// Command vesper is the always-listening voice assistant daemon.
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

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/vesperd/vesper/internal/app"
	"github.com/vesperd/vesper/internal/config"
	"github.com/vesperd/vesper/internal/health"
	"github.com/vesperd/vesper/internal/history"
	"github.com/vesperd/vesper/internal/observe"
	"github.com/vesperd/vesper/internal/resilience"
	"github.com/vesperd/vesper/pkg/audio"
	"github.com/vesperd/vesper/pkg/provider/llm"
	"github.com/vesperd/vesper/pkg/provider/llm/anyllm"
	oaillm "github.com/vesperd/vesper/pkg/provider/llm/openai"
	"github.com/vesperd/vesper/pkg/provider/stt/whisper"
	"github.com/vesperd/vesper/pkg/provider/tts"
	commandtts "github.com/vesperd/vesper/pkg/provider/tts/command"
	"github.com/vesperd/vesper/pkg/provider/tts/coqui"
)

const defaultConfigPath = "vesper.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	flag.Parse()

	// ── Configuration ─────────────────────────────────────────────────────
	cfg, watcher, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vesper: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if watcher != nil {
		defer watcher.Stop()
		watcher.SetOnChange(func(diff config.ConfigDiff, _ *config.Config) {
			if diff.LogLevelChanged {
				level.Set(diff.NewLogLevel.Level())
				logger.Info("log level changed", "level", diff.NewLogLevel)
			}
		})
	}

	slog.Info("vesper starting",
		"config", *configPath,
		"wake_word", cfg.Wake.Word,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "vesper"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────
	providers, err := buildProviders(ctx, cfg, logger, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	var store *history.Store
	if dsn := cfg.History.PostgresDSN; dsn != "" {
		store, err = history.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to open history store", "err", err)
			return 1
		}
		defer store.Close()
		providers.Recorder = store
		slog.Info("history persistence enabled")
	}

	// ── Application ───────────────────────────────────────────────────────
	application, err := app.New(cfg, providers, app.WithLogger(logger), app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── HTTP surface: health checks and metrics ───────────────────────────
	var httpSrv *http.Server
	if cfg.Server.ListenAddr != "" {
		httpSrv = newHTTPServer(cfg.Server.ListenAddr, application, store, metrics)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
		slog.Info("http surface listening", "addr", cfg.Server.ListenAddr)
	}

	slog.Info("ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")

	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig loads the config file and starts the hot-reload watcher. A
// missing file at the default path is not an error: the assistant runs on
// built-in defaults.
func loadConfig(path string) (*config.Config, *config.Watcher, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if path != defaultConfigPath {
			return nil, nil, fmt.Errorf("config file %q not found", path)
		}
		return config.Default(), nil, nil
	}

	watcher, err := config.NewWatcher(path, nil)
	if err != nil {
		return nil, nil, err
	}
	return watcher.Current(), watcher, nil
}

// newHTTPServer assembles the health and metrics endpoints.
func newHTTPServer(addr string, application *app.App, store *history.Store, metrics *observe.Metrics) *http.Server {
	checkers := []health.Checker{
		health.RunningChecker("capture", application.Running),
	}
	if store != nil {
		checkers = append(checkers, health.PingChecker("history", store.Ping))
	}

	mux := http.NewServeMux()
	health.New(checkers...).WithState(application.State).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────

// buildProviders constructs the microphone, transcriber, responder, and
// synthesizer named in cfg.
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observe.Metrics) (app.Providers, error) {
	mic, err := audio.NewMicrophone(audio.CaptureConfig{
		SampleRate:    cfg.Listen.SampleRate,
		FrameDuration: cfg.Listen.FrameDuration.Std(),
	})
	if err != nil {
		return app.Providers{}, fmt.Errorf("open microphone: %w", err)
	}

	transcriber, err := whisper.New(cfg.Providers.STT.ModelPath,
		whisper.WithLanguage(cfg.Providers.STT.Language))
	if err != nil {
		mic.Close()
		return app.Providers{}, fmt.Errorf("load whisper model: %w", err)
	}

	responder, err := buildResponder(cfg.Providers.LLM, logger)
	if err != nil {
		mic.Close()
		transcriber.Close()
		return app.Providers{}, fmt.Errorf("create llm backend: %w", err)
	}

	synth, err := buildSynthesizer(ctx, cfg.Providers.TTS, logger, metrics)
	if err != nil {
		mic.Close()
		transcriber.Close()
		return app.Providers{}, fmt.Errorf("create tts backend: %w", err)
	}

	return app.Providers{
		Device:      mic,
		Transcriber: transcriber,
		Responder:   responder,
		Synthesizer: synth,
	}, nil
}

// buildResponder creates the configured LLM backend and, when fallbacks are
// listed, wraps the set in a circuit-breaker chain.
func buildResponder(c config.LLMConfig, logger *slog.Logger) (llm.Responder, error) {
	primary, err := newResponder(c)
	if err != nil {
		return nil, err
	}
	if len(c.Fallbacks) == 0 {
		return primary, nil
	}

	fb := resilience.NewFallbackResponder(c.Name, primary,
		resilience.BreakerConfig{Name: "llm", Logger: logger})
	for _, f := range c.Fallbacks {
		r, err := newResponder(f)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", f.Name, err)
		}
		fb.Add(f.Name, r)
	}
	return fb, nil
}

// newResponder creates a single LLM backend. "openai" uses the native client;
// every other name goes through the any-llm adapter.
func newResponder(c config.LLMConfig) (llm.Responder, error) {
	if c.Name == "openai" {
		opts := []oaillm.Option{}
		if c.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(c.BaseURL))
		}
		if c.Timeout.Std() > 0 {
			opts = append(opts, oaillm.WithTimeout(c.Timeout.Std()))
		}
		if c.SystemPrompt != "" {
			opts = append(opts, oaillm.WithSystemPrompt(c.SystemPrompt))
		}
		if c.MaxTokens > 0 {
			opts = append(opts, oaillm.WithMaxTokens(c.MaxTokens))
		}
		if c.Temperature > 0 {
			opts = append(opts, oaillm.WithTemperature(c.Temperature))
		}
		return oaillm.New(c.APIKey, c.Model, opts...)
	}

	var backendOpts []anyllmlib.Option
	if c.APIKey != "" {
		backendOpts = append(backendOpts, anyllmlib.WithAPIKey(c.APIKey))
	}
	if c.BaseURL != "" {
		backendOpts = append(backendOpts, anyllmlib.WithBaseURL(c.BaseURL))
	}
	var respOpts []anyllm.ResponderOption
	if c.SystemPrompt != "" {
		respOpts = append(respOpts, anyllm.WithSystemPrompt(c.SystemPrompt))
	}
	if c.MaxTokens > 0 {
		respOpts = append(respOpts, anyllm.WithMaxTokens(c.MaxTokens))
	}
	if c.Temperature > 0 {
		respOpts = append(respOpts, anyllm.WithTemperature(c.Temperature))
	}
	return anyllm.NewWithOptions(c.Name, c.Model, backendOpts, respOpts)
}

// buildSynthesizer creates the configured TTS backend. The Coqui backend
// reports synthesis timings into the metrics; with command_fallback enabled
// the system speech command takes over when the server's circuit opens.
func buildSynthesizer(ctx context.Context, c config.TTSConfig, logger *slog.Logger, metrics *observe.Metrics) (tts.Synthesizer, error) {
	cmdOpts := []commandtts.Option{commandtts.WithLogger(logger)}
	if c.Command != "" {
		cmdOpts = append(cmdOpts, commandtts.WithCommand(c.Command, c.CommandArgs...))
	}

	if c.Name == "" || c.Name == "command" {
		return commandtts.New(cmdOpts...), nil
	}

	copts := []coqui.Option{
		coqui.WithLogger(logger),
		coqui.WithTimingFunc(func(d time.Duration, err error) {
			if err != nil {
				metrics.RecordProviderError(ctx, "coqui", "synthesis")
				return
			}
			metrics.TTSDuration.Record(ctx, d.Seconds())
		}),
	}
	if c.Language != "" {
		copts = append(copts, coqui.WithLanguage(c.Language))
	}
	if c.APIMode != "" {
		copts = append(copts, coqui.WithAPIMode(coqui.APIMode(c.APIMode)))
	}
	if c.Voice != "" {
		copts = append(copts, coqui.WithVoice(c.Voice))
	}
	if c.Timeout.Std() > 0 {
		copts = append(copts, coqui.WithTimeout(c.Timeout.Std()))
	}
	server, err := coqui.New(c.ServerURL, copts...)
	if err != nil {
		return nil, err
	}
	if !c.CommandFallback {
		return server, nil
	}

	fb := resilience.NewFallbackSynthesizer("coqui", server,
		resilience.BreakerConfig{Name: "tts", Logger: logger})
	fb.Add("command", commandtts.New(cmdOpts...))
	return fb, nil
}

// ── Startup summary ───────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Vesper — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Wake word", cfg.Wake.Word)
	printRow("STT", "whisper / "+cfg.Providers.STT.ModelPath)
	llmValue := cfg.Providers.LLM.Name + " / " + cfg.Providers.LLM.Model
	if n := len(cfg.Providers.LLM.Fallbacks); n > 0 {
		llmValue = fmt.Sprintf("%s (+%d)", llmValue, n)
	}
	printRow("LLM", llmValue)
	ttsValue := cfg.Providers.TTS.Name
	if ttsValue == "" {
		ttsValue = "command"
	}
	printRow("TTS", ttsValue)
	if cfg.History.PostgresDSN != "" {
		printRow("History", "postgres")
	} else {
		printRow("History", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", kind, value)
}
