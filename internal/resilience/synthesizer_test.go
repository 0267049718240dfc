package resilience

import (
	"errors"
	"testing"

	"github.com/vesperd/vesper/pkg/provider/tts"
	ttsmock "github.com/vesperd/vesper/pkg/provider/tts/mock"
)

func TestFallbackSynthesizer_FailsOver(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Synthesizer{Err: errBackend}
	fallback := &ttsmock.Synthesizer{}
	f := NewFallbackSynthesizer("primary", primary, BreakerConfig{})
	f.Add("fallback", fallback)

	if err := f.Speak("hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if spoken := fallback.Spoken(); len(spoken) != 1 || spoken[0] != "hello" {
		t.Errorf("fallback spoke %v, want the utterance", spoken)
	}
}

func TestFallbackSynthesizer_BusyGroupRefusesWithoutFallthrough(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Synthesizer{}
	primary.SetBusy(true)
	fallback := &ttsmock.Synthesizer{}
	f := NewFallbackSynthesizer("primary", primary, BreakerConfig{})
	f.Add("fallback", fallback)

	if !f.Busy() {
		t.Fatal("Busy = false with a speaking entry")
	}
	if err := f.Speak("hello"); !errors.Is(err, tts.ErrBusy) {
		t.Fatalf("Speak = %v, want tts.ErrBusy", err)
	}
	if len(fallback.Spoken()) != 0 {
		t.Error("fallback spoke while the primary was mid-utterance")
	}
}

func TestFallbackSynthesizer_StopAndCloseFanOut(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Synthesizer{}
	fallback := &ttsmock.Synthesizer{}
	f := NewFallbackSynthesizer("primary", primary, BreakerConfig{})
	f.Add("fallback", fallback)

	f.Stop()
	if primary.StopCallCount() != 1 || fallback.StopCallCount() != 1 {
		t.Error("Stop did not reach every synthesizer")
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !primary.Closed() || !fallback.Closed() {
		t.Error("Close did not reach every synthesizer")
	}
}

func TestFallbackSynthesizer_AllFailed(t *testing.T) {
	t.Parallel()

	f := NewFallbackSynthesizer("primary", &ttsmock.Synthesizer{Err: errBackend}, BreakerConfig{})
	f.Add("fallback", &ttsmock.Synthesizer{Err: errBackend})

	if err := f.Speak("hello"); !errors.Is(err, ErrAllFailed) {
		t.Errorf("Speak = %v, want ErrAllFailed", err)
	}
}
