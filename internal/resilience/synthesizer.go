package resilience

import (
	"errors"
	"fmt"

	"github.com/vesperd/vesper/pkg/provider/tts"
)

// FallbackSynthesizer implements [tts.Synthesizer] with automatic failover,
// e.g. a Coqui server with the system speech command as fallback.
//
// Speak participates in failover; busy signalling is treated as a property
// of the whole group, not a failure: tts.ErrBusy from any entry aborts the
// attempt rather than falling through, since a second backend talking over
// the first would be worse than a dropped utterance.
type FallbackSynthesizer struct {
	chain *Chain[tts.Synthesizer]
}

var _ tts.Synthesizer = (*FallbackSynthesizer)(nil)

// NewFallbackSynthesizer creates a FallbackSynthesizer with primary as the
// preferred backend.
func NewFallbackSynthesizer(primaryName string, primary tts.Synthesizer, cfg BreakerConfig) *FallbackSynthesizer {
	return &FallbackSynthesizer{chain: NewChain(primaryName, primary, cfg)}
}

// Add registers an additional synthesizer as a fallback.
func (f *FallbackSynthesizer) Add(name string, s tts.Synthesizer) {
	f.chain.Add(name, s)
}

// Speak starts the utterance on the first healthy synthesizer.
func (f *FallbackSynthesizer) Speak(text string) error {
	if f.Busy() {
		return tts.ErrBusy
	}

	var lastErr error
	for i := range f.chain.entries {
		entry := &f.chain.entries[i]
		err := entry.breaker.Do(func() error {
			return entry.value.Speak(text)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, tts.ErrBusy) {
			return tts.ErrBusy
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// Busy reports whether any registered synthesizer is speaking.
func (f *FallbackSynthesizer) Busy() bool {
	for i := range f.chain.entries {
		if f.chain.entries[i].value.Busy() {
			return true
		}
	}
	return false
}

// Stop interrupts all registered synthesizers.
func (f *FallbackSynthesizer) Stop() {
	f.chain.each(func(s tts.Synthesizer) error {
		s.Stop()
		return nil
	})
}

// Close closes every registered synthesizer and joins their errors.
func (f *FallbackSynthesizer) Close() error {
	return f.chain.each(func(s tts.Synthesizer) error {
		return s.Close()
	})
}
