package listen

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/vesperd/vesper/internal/observe"
	"github.com/vesperd/vesper/internal/transcript"
	"github.com/vesperd/vesper/pkg/audio"
	"github.com/vesperd/vesper/pkg/provider/stt"
)

// SegmenterConfig tunes the speech segmentation state machine. The defaults
// are calibrated for ambient noise of roughly 0.02-0.10 peak and 0.006-0.04
// RMS on normalized float samples.
type SegmenterConfig struct {
	// PeakThreshold is the peak amplitude below which a frame can be
	// silence. Default 0.12.
	PeakThreshold float64

	// RMSThreshold is the RMS energy below which a frame can be silence. A
	// frame is silence only when BOTH peak and RMS are below their
	// thresholds; a transient visible to either detector counts as speech.
	// Default 0.045.
	RMSThreshold float64

	// MinSilence is the sustained-silence duration after which the window
	// is discarded without flushing. Default 300 ms.
	MinSilence time.Duration

	// MinUtterance is the minimum window duration before a flush is
	// considered. Default 2 s.
	MinUtterance time.Duration

	// FlushInterval is the minimum time between flushes, preventing the
	// same audio from being re-transcribed on every frame. Default 1 s.
	FlushInterval time.Duration

	// FlushSlice is the trailing window duration actually sent to
	// transcription on flush. Default 2.5 s.
	FlushSlice time.Duration

	// EnergyFloor gates flushes: a slice whose RMS is below this floor is
	// near-silent noise and skips transcription. Default 0.003.
	EnergyFloor float64

	// EnergyTail is the trailing window duration retained after an
	// energy-gated flush. Default 1.5 s.
	EnergyTail time.Duration

	// MaxWindow is the hard cap on window duration. Default 5 s.
	MaxWindow time.Duration

	// MaxWindowTail is the trailing duration kept when the cap is hit.
	// Default 3 s.
	MaxWindowTail time.Duration

	// PollTimeout bounds each frame-buffer poll. Default 100 ms.
	PollTimeout time.Duration

	// LevelInterval throttles the periodic audio-level debug log.
	// Default 5 s.
	LevelInterval time.Duration
}

// withDefaults returns the config with zero fields replaced by defaults.
func (c SegmenterConfig) withDefaults() SegmenterConfig {
	if c.PeakThreshold <= 0 {
		c.PeakThreshold = 0.12
	}
	if c.RMSThreshold <= 0 {
		c.RMSThreshold = 0.045
	}
	if c.MinSilence <= 0 {
		c.MinSilence = 300 * time.Millisecond
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = 2 * time.Second
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.FlushSlice <= 0 {
		c.FlushSlice = 2500 * time.Millisecond
	}
	if c.EnergyFloor <= 0 {
		c.EnergyFloor = 0.003
	}
	if c.EnergyTail <= 0 {
		c.EnergyTail = 1500 * time.Millisecond
	}
	if c.MaxWindow <= 0 {
		c.MaxWindow = 5 * time.Second
	}
	if c.MaxWindowTail <= 0 {
		c.MaxWindowTail = 3 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 100 * time.Millisecond
	}
	if c.LevelInterval <= 0 {
		c.LevelInterval = 5 * time.Second
	}
	return c
}

// Segmenter consumes frames from a FrameBuffer, classifies each as speech or
// silence via dual-threshold energy detection, accumulates speech into a
// rolling window, and flushes trailing slices to a transcriber.
//
// All mutable state is confined to the goroutine running [Segmenter.Run];
// the Segmenter itself is not safe for concurrent use.
type Segmenter struct {
	cfg         SegmenterConfig
	buf         *FrameBuffer
	transcriber stt.Transcriber

	log     *slog.Logger
	metrics *observe.Metrics
	cal     *Calibration

	window     []float32
	sampleRate int
	lastSpeech time.Time
	lastFlush  time.Time
	lastLevel  time.Time
}

// SegmenterOption is a functional option for configuring a Segmenter.
type SegmenterOption func(*Segmenter)

// WithLogger sets the segmenter's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) SegmenterOption {
	return func(s *Segmenter) { s.log = log }
}

// WithMetrics sets the metrics instance recording flushes and transcription
// latency. Defaults to no metrics.
func WithMetrics(m *observe.Metrics) SegmenterOption {
	return func(s *Segmenter) { s.metrics = m }
}

// WithCalibration attaches a Calibration tracker that observes every frame
// classification for threshold diagnostics.
func WithCalibration(cal *Calibration) SegmenterOption {
	return func(s *Segmenter) { s.cal = cal }
}

// NewSegmenter creates a Segmenter draining buf and transcribing flushed
// slices with transcriber.
func NewSegmenter(buf *FrameBuffer, transcriber stt.Transcriber, cfg SegmenterConfig, opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		cfg:         cfg.withDefaults(),
		buf:         buf,
		transcriber: transcriber,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run drains the frame buffer until ctx is cancelled, invoking emit for each
// transcript produced. Transcription failures are logged and processing
// continues; Run only returns on cancellation.
func (s *Segmenter) Run(ctx context.Context, emit func(transcript.Transcript)) error {
	s.log.Info("segmenter started",
		"peak_threshold", s.cfg.PeakThreshold,
		"rms_threshold", s.cfg.RMSThreshold,
		"min_utterance", s.cfg.MinUtterance,
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, ok := s.buf.Pop(s.cfg.PollTimeout)
		if !ok {
			continue
		}
		if tr := s.handleFrame(ctx, frame); tr != nil {
			emit(*tr)
		}
	}
}

// handleFrame runs the segmentation state machine for one frame and returns
// a transcript when a flush produced usable text.
func (s *Segmenter) handleFrame(ctx context.Context, frame audio.Frame) *transcript.Transcript {
	peak := audio.Peak(frame.Samples)
	rms := audio.RMS(frame.Samples)
	now := time.Now()

	// Silence requires agreement between both detectors.
	speech := peak >= s.cfg.PeakThreshold || rms >= s.cfg.RMSThreshold
	if s.cal != nil {
		s.cal.Observe(frame.Samples, speech)
	}

	if now.Sub(s.lastLevel) >= s.cfg.LevelInterval {
		s.log.Debug("audio levels",
			"peak", peak, "rms", rms, "window", s.windowDuration())
		s.lastLevel = now
	}

	if !speech {
		// Short gaps inside an utterance keep the window; sustained
		// silence discards it without flushing.
		if now.Sub(s.lastSpeech) > s.cfg.MinSilence {
			s.window = s.window[:0]
		}
		return nil
	}

	s.lastSpeech = now
	s.sampleRate = frame.SampleRate
	s.window = append(s.window, frame.Samples...)

	// Hard cap bounds memory regardless of flush timing.
	if s.windowDuration() > s.cfg.MaxWindow {
		s.truncate(s.cfg.MaxWindowTail)
	}

	if s.windowDuration() < s.cfg.MinUtterance || now.Sub(s.lastFlush) < s.cfg.FlushInterval {
		return nil
	}
	return s.flush(ctx, now)
}

// flush transcribes the trailing FlushSlice of the window. The window itself
// is retained (the hard cap bounds it) so a follow-up flush can pick up
// speech that continued past this slice.
func (s *Segmenter) flush(ctx context.Context, now time.Time) *transcript.Transcript {
	slice := s.tail(s.cfg.FlushSlice)

	// Near-silence that passed the coarser per-frame gate: skip the
	// transcription call and keep only a short tail.
	if audio.RMS(slice) < s.cfg.EnergyFloor {
		s.truncate(s.cfg.EnergyTail)
		if s.metrics != nil {
			s.metrics.RecordFlush(ctx, "gated")
		}
		return nil
	}

	s.lastFlush = now

	// Copy out of the window: truncation reuses its backing array.
	samples := make([]float32, len(slice))
	copy(samples, slice)

	start := time.Now()
	res, err := s.transcriber.Transcribe(ctx, samples, s.sampleRate)
	latency := time.Since(start)
	if s.metrics != nil {
		s.metrics.STTDuration.Record(ctx, latency.Seconds())
	}
	if err != nil {
		// Never fatal: the window stays intact and the loop continues.
		s.log.Error("transcription failed", "error", err)
		if s.metrics != nil {
			s.metrics.RecordFlush(ctx, "failed")
		}
		return nil
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		if s.metrics != nil {
			s.metrics.RecordFlush(ctx, "empty")
		}
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordFlush(ctx, "transcribed")
	}
	s.log.Info("transcribed", "text", text, "latency", latency)
	return &transcript.Transcript{Text: text, Latency: latency, At: now}
}

// windowDuration returns the current window length in time.
func (s *Segmenter) windowDuration() time.Duration {
	if s.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.window)) / float64(s.sampleRate) * float64(time.Second))
}

// tail returns the trailing d of the window without copying.
func (s *Segmenter) tail(d time.Duration) []float32 {
	n := int(d.Seconds() * float64(s.sampleRate))
	if n <= 0 || len(s.window) <= n {
		return s.window
	}
	return s.window[len(s.window)-n:]
}

// truncate keeps only the trailing d of the window, reusing its backing
// array.
func (s *Segmenter) truncate(d time.Duration) {
	keep := s.tail(d)
	if len(keep) == len(s.window) {
		return
	}
	copy(s.window, keep)
	s.window = s.window[:len(keep)]
}
