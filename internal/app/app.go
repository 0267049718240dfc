// Package app wires the voice pipeline together and owns its lifecycle:
// microphone capture feeds a bounded frame buffer, the segmenter flushes
// candidate utterances to transcription, transcripts pass through the
// hallucination filter and wake-word extractor, and addressed commands are
// handed to the turn coordinator.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vesperd/vesper/internal/config"
	"github.com/vesperd/vesper/internal/listen"
	"github.com/vesperd/vesper/internal/observe"
	"github.com/vesperd/vesper/internal/transcript"
	"github.com/vesperd/vesper/internal/transcript/wakeword"
	"github.com/vesperd/vesper/internal/turn"
	"github.com/vesperd/vesper/pkg/audio"
	"github.com/vesperd/vesper/pkg/provider/llm"
	"github.com/vesperd/vesper/pkg/provider/stt"
	"github.com/vesperd/vesper/pkg/provider/tts"
)

// synthDrainTimeout bounds how long Shutdown waits for an in-flight
// utterance before interrupting it.
const synthDrainTimeout = 5 * time.Second

// Compile-time assertion that App satisfies the coordinator's lifecycle
// dependency.
var _ turn.Lifecycle = (*App)(nil)

// Providers holds the pipeline backends the App runs on. Device,
// Transcriber, Responder, and Synthesizer are required; Recorder is
// optional and receives every completed exchange.
type Providers struct {
	Device      audio.Device
	Transcriber stt.Transcriber
	Responder   llm.Responder
	Synthesizer tts.Synthesizer
	Recorder    turn.Recorder
}

// closer is a named shutdown step. Closers run in registration order.
type closer struct {
	name  string
	close func() error
}

// App owns the assembled pipeline. Construct with New, start with Run, and
// stop with Shutdown; voice-initiated exits arrive through ScheduleShutdown.
type App struct {
	cfg       *config.Config
	providers Providers
	log       *slog.Logger
	metrics   *observe.Metrics

	buffer      *listen.FrameBuffer
	segmenter   *listen.Segmenter
	cal         *listen.Calibration
	filter      *transcript.Filter
	extractor   *wakeword.Extractor
	coordinator *turn.Coordinator

	// turns hands addressed speech from the segmentation goroutine to the
	// turn goroutine, so segmentation keeps draining the frame buffer while
	// a reply is being generated.
	turns chan wakeword.Extraction

	mu        sync.Mutex
	stopRun   context.CancelFunc
	deferStop *time.Timer

	running  atomic.Bool
	stopOnce sync.Once
	closers  []closer
}

// Option is a functional option for configuring an App.
type Option func(*App)

// WithLogger sets the app's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithMetrics sets the metrics instance shared across the pipeline.
// Defaults to no metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New assembles the pipeline from cfg and the given providers. The App
// takes ownership of the providers and closes them on Shutdown.
func New(cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	switch {
	case providers.Device == nil:
		return nil, errors.New("app: audio device is required")
	case providers.Transcriber == nil:
		return nil, errors.New("app: transcriber is required")
	case providers.Responder == nil:
		return nil, errors.New("app: responder is required")
	case providers.Synthesizer == nil:
		return nil, errors.New("app: synthesizer is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
		turns:     make(chan wakeword.Extraction, 1),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.buffer = listen.NewFrameBuffer(cfg.Listen.BufferCapacity,
		listen.WithBufferLogger(a.log),
		listen.WithBufferMetrics(a.metrics),
	)
	a.cal = listen.NewCalibration()
	a.segmenter = listen.NewSegmenter(a.buffer, providers.Transcriber, listen.SegmenterConfig{
		PeakThreshold: cfg.Listen.PeakThreshold,
		RMSThreshold:  cfg.Listen.RMSThreshold,
		MinSilence:    cfg.Listen.MinSilence.Std(),
		MinUtterance:  cfg.Listen.MinUtterance.Std(),
		FlushInterval: cfg.Listen.FlushInterval.Std(),
		FlushSlice:    cfg.Listen.FlushSlice.Std(),
		EnergyFloor:   cfg.Listen.EnergyFloor,
		EnergyTail:    cfg.Listen.EnergyTail.Std(),
		MaxWindow:     cfg.Listen.MaxWindow.Std(),
		MaxWindowTail: cfg.Listen.MaxWindowTail.Std(),
	}, listen.WithLogger(a.log), listen.WithMetrics(a.metrics), listen.WithCalibration(a.cal))

	a.filter = transcript.NewFilter(
		transcript.WithExtraPhrases(cfg.Filter.ExtraPhrases...),
		transcript.WithExtraArtifacts(cfg.Filter.ExtraArtifacts...),
	)

	var wakeOpts []wakeword.Option
	if len(cfg.Wake.Confusions) > 0 {
		wakeOpts = append(wakeOpts, wakeword.WithConfusions(cfg.Wake.Confusions...))
	}
	if len(cfg.Wake.ExitPhrases) > 0 {
		wakeOpts = append(wakeOpts, wakeword.WithExitPhrases(cfg.Wake.ExitPhrases...))
	}
	if cfg.Wake.PhoneticThreshold > 0 {
		wakeOpts = append(wakeOpts, wakeword.WithPhoneticThreshold(cfg.Wake.PhoneticThreshold))
	}
	if cfg.Wake.FuzzyThreshold > 0 {
		wakeOpts = append(wakeOpts, wakeword.WithFuzzyThreshold(cfg.Wake.FuzzyThreshold))
	}
	a.extractor = wakeword.New(cfg.Wake.Word, wakeOpts...)

	turnOpts := []turn.Option{turn.WithLogger(a.log), turn.WithMetrics(a.metrics)}
	if providers.Recorder != nil {
		turnOpts = append(turnOpts, turn.WithRecorder(providers.Recorder))
	}
	a.coordinator = turn.NewCoordinator(providers.Responder, providers.Synthesizer, a, turnOpts...)

	a.closers = []closer{
		{"transcriber", providers.Transcriber.Close},
		{"synthesizer", providers.Synthesizer.Close},
		{"audio device", providers.Device.Close},
	}
	return a, nil
}

// Running reports whether the capture-to-turn pipeline is active.
func (a *App) Running() bool { return a.running.Load() }

// State returns the pipeline's current state name, for health reporting. An
// idle coordinator under a running pipeline reports listening: capture is up
// and the assistant is awaiting a wake word.
func (a *App) State() string {
	s := a.coordinator.State()
	if s == turn.Idle && a.running.Load() {
		return turn.Listening.String()
	}
	return s.String()
}

// Run starts capture and the segmentation loop and blocks until ctx is
// cancelled or a voice-initiated shutdown fires.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.stopRun = cancel
	a.mu.Unlock()

	// The capture callback runs on the audio thread and must only enqueue.
	if err := a.providers.Device.Start(func(frame audio.Frame) {
		a.buffer.Push(frame)
	}); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}

	a.running.Store(true)
	if a.metrics != nil {
		a.metrics.Listening.Add(ctx, 1)
	}
	defer func() {
		a.running.Store(false)
		if a.metrics != nil {
			a.metrics.Listening.Add(context.Background(), -1)
		}
	}()

	a.log.Info("vesper listening", "wake_word", a.cfg.Wake.Word)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.segmenter.Run(ctx, func(tr transcript.Transcript) {
			a.handleTranscript(ctx, tr)
		})
	})
	g.Go(func() error {
		// Turns run apart from segmentation: a seconds-long generation
		// call must not stall the frame buffer drain.
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ex := <-a.turns:
				a.coordinator.Handle(ctx, ex)
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		// Stop capture promptly so the buffer stops filling while the
		// segmenter drains its final poll.
		if err := a.providers.Device.Stop(); err != nil {
			a.log.Warn("stopping capture failed", "error", err)
		}
		return ctx.Err()
	})
	return g.Wait()
}

// handleTranscript runs one transcript through the filter and wake-word
// stages and hands addressed speech to the coordinator.
func (a *App) handleTranscript(ctx context.Context, tr transcript.Transcript) {
	if a.filter.IsHallucination(tr.Text) {
		if a.metrics != nil {
			a.metrics.HallucinationsRejected.Add(ctx, 1)
		}
		a.log.Debug("transcript rejected as hallucination", "text", tr.Text)
		return
	}

	ex := a.extractor.Extract(tr.Text)
	if a.metrics != nil {
		a.metrics.RecordWakeWord(ctx, ex.Outcome != wakeword.OutcomeNone, ex.Match)
	}
	if ex.Outcome == wakeword.OutcomeNone {
		a.log.Debug("transcript not addressed to assistant", "text", tr.Text)
		return
	}

	a.log.Info("wake word detected",
		"outcome", ex.Outcome.String(), "match", ex.Match, "word", ex.Word)

	// Block rather than drop when a turn is already queued; the segmenter's
	// flush spacing makes back-to-back commands rare.
	select {
	case a.turns <- ex:
	case <-ctx.Done():
	}
}

// ScheduleShutdown arranges for Run to return after delay, giving the
// synthesizer time to finish the farewell. A later call supersedes an
// earlier pending one; Shutdown cancels any pending timer.
func (a *App) ScheduleShutdown(delay time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.deferStop != nil {
		a.deferStop.Stop()
	}
	a.log.Info("shutdown scheduled", "delay", delay)
	a.deferStop = time.AfterFunc(delay, func() {
		a.mu.Lock()
		cancel := a.stopRun
		a.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

// Shutdown stops capture, waits briefly for an in-flight utterance, and
// closes the providers in order. Safe to call multiple times; only the
// first call does the work. A cancelled ctx abandons the remaining closers.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		if a.deferStop != nil {
			a.deferStop.Stop()
			a.deferStop = nil
		}
		cancel := a.stopRun
		a.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		// Capture first: no new frames while the rest winds down.
		if err := a.providers.Device.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("app: stop capture: %w", err))
		}

		a.drainSynth(ctx)

		if d, ok := a.cal.Diagnose(); ok && d.Misconfigured() {
			a.log.Warn("segmentation thresholds look misconfigured",
				"speech_ratio", d.SpeechRatio,
				"mean_peak", d.MeanPeak,
				"mean_rms", d.MeanRMS,
				"mean_flux", d.MeanFlux,
			)
		}

		for _, c := range a.closers {
			if err := ctx.Err(); err != nil {
				errs = append(errs, fmt.Errorf("app: shutdown interrupted before closing %s: %w", c.name, err))
				break
			}
			if err := c.close(); err != nil {
				a.log.Warn("closing component failed", "component", c.name, "error", err)
				errs = append(errs, fmt.Errorf("app: close %s: %w", c.name, err))
			}
		}
		a.log.Info("vesper stopped")
	})
	return errors.Join(errs...)
}

// drainSynth waits for the synthesizer to finish speaking, bounded by ctx
// and a fixed timeout, then interrupts whatever remains.
func (a *App) drainSynth(ctx context.Context) {
	deadline := time.Now().Add(synthDrainTimeout)
	for a.providers.Synthesizer.Busy() {
		if ctx.Err() != nil || time.Now().After(deadline) {
			a.providers.Synthesizer.Stop()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
