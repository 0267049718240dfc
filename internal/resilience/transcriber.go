package resilience

import (
	"context"

	"github.com/vesperd/vesper/pkg/provider/stt"
)

// FallbackTranscriber implements [stt.Transcriber] with automatic failover
// across multiple transcription backends.
type FallbackTranscriber struct {
	chain *Chain[stt.Transcriber]
}

var _ stt.Transcriber = (*FallbackTranscriber)(nil)

// NewFallbackTranscriber creates a FallbackTranscriber with primary as the
// preferred backend.
func NewFallbackTranscriber(primaryName string, primary stt.Transcriber, cfg BreakerConfig) *FallbackTranscriber {
	return &FallbackTranscriber{chain: NewChain(primaryName, primary, cfg)}
}

// Add registers an additional transcriber as a fallback.
func (f *FallbackTranscriber) Add(name string, t stt.Transcriber) {
	f.chain.Add(name, t)
}

// Transcribe runs the samples through the first healthy transcriber.
func (f *FallbackTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Result, error) {
	return DoResult(f.chain, func(t stt.Transcriber) (stt.Result, error) {
		return t.Transcribe(ctx, samples, sampleRate)
	})
}

// Close closes every registered transcriber and joins their errors.
func (f *FallbackTranscriber) Close() error {
	return f.chain.each(func(t stt.Transcriber) error {
		return t.Close()
	})
}
