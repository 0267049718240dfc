// Package observe provides application-wide observability primitives for
// Vesper: OpenTelemetry metrics, tracing, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Vesper metrics.
const meterName = "github.com/vesperd/vesper"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks response-generation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end turn latency, from command intake to
	// synthesis hand-off.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// FramesCaptured counts audio frames delivered by the capture device.
	FramesCaptured metric.Int64Counter

	// FramesDropped counts frames discarded because the frame buffer was full.
	FramesDropped metric.Int64Counter

	// WindowFlushes counts speech-window flushes. Use with attribute:
	//   attribute.String("outcome", "transcribed"|"gated"|"failed"|"empty")
	WindowFlushes metric.Int64Counter

	// HallucinationsRejected counts transcripts discarded by the
	// hallucination filter.
	HallucinationsRejected metric.Int64Counter

	// WakeWordHits counts transcripts that matched the wake word. Use with
	// attribute:
	//   attribute.String("match", "exact"|"confusion"|"phonetic"|"exit")
	WakeWordHits metric.Int64Counter

	// WakeWordMisses counts transcripts discarded for lacking a wake word.
	WakeWordMisses metric.Int64Counter

	// TurnsCompleted counts finished turns. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	TurnsCompleted metric.Int64Counter

	// ActionExecutions counts dispatched actions. Use with attribute:
	//   attribute.String("action", ...)
	ActionExecutions metric.Int64Counter

	// ProviderErrors counts provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// Listening tracks whether the assistant is actively listening (0 or 1).
	Listening metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("vesper.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("vesper.llm.duration",
		metric.WithDescription("Latency of response generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("vesper.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("vesper.turn.duration",
		metric.WithDescription("End-to-end turn latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesCaptured, err = m.Int64Counter("vesper.audio.frames_captured",
		metric.WithDescription("Total audio frames delivered by the capture device."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("vesper.audio.frames_dropped",
		metric.WithDescription("Total frames dropped because the frame buffer was full."),
	); err != nil {
		return nil, err
	}
	if met.WindowFlushes, err = m.Int64Counter("vesper.segmenter.flushes",
		metric.WithDescription("Total speech-window flushes by outcome."),
	); err != nil {
		return nil, err
	}
	if met.HallucinationsRejected, err = m.Int64Counter("vesper.transcript.hallucinations_rejected",
		metric.WithDescription("Total transcripts rejected by the hallucination filter."),
	); err != nil {
		return nil, err
	}
	if met.WakeWordHits, err = m.Int64Counter("vesper.wakeword.hits",
		metric.WithDescription("Total wake-word matches by match kind."),
	); err != nil {
		return nil, err
	}
	if met.WakeWordMisses, err = m.Int64Counter("vesper.wakeword.misses",
		metric.WithDescription("Total transcripts discarded for lacking a wake word."),
	); err != nil {
		return nil, err
	}
	if met.TurnsCompleted, err = m.Int64Counter("vesper.turns.completed",
		metric.WithDescription("Total completed turns by status."),
	); err != nil {
		return nil, err
	}
	if met.ActionExecutions, err = m.Int64Counter("vesper.action.executions",
		metric.WithDescription("Total dispatched action executions by action name."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("vesper.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.Listening, err = m.Int64UpDownCounter("vesper.listening",
		metric.WithDescription("Whether the assistant is actively listening (0 or 1)."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vesper.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFlush records a speech-window flush with its outcome.
func (m *Metrics) RecordFlush(ctx context.Context, outcome string) {
	m.WindowFlushes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordWakeWord records a wake-word hit or miss. For hits, match names the
// matching mechanism ("exact", "confusion", "phonetic", or "exit").
func (m *Metrics) RecordWakeWord(ctx context.Context, hit bool, match string) {
	if hit {
		m.WakeWordHits.Add(ctx, 1,
			metric.WithAttributes(attribute.String("match", match)),
		)
		return
	}
	m.WakeWordMisses.Add(ctx, 1)
}

// RecordTurn records a completed turn with its status and duration in seconds.
func (m *Metrics) RecordTurn(ctx context.Context, status string, seconds float64) {
	m.TurnsCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.TurnDuration.Record(ctx, seconds)
}

// RecordAction records a dispatched action execution.
func (m *Metrics) RecordAction(ctx context.Context, action string) {
	m.ActionExecutions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("action", action)),
	)
}

// RecordProviderError records a provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
