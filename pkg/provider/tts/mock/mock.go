// Package mock provides an in-memory tts.Synthesizer for tests.
package mock

import (
	"sync"

	"github.com/vesperd/vesper/pkg/provider/tts"
)

// Synthesizer is a mock implementation of tts.Synthesizer. The busy state is
// fully caller-controlled via SetBusy, so tests can exercise busy-gating
// deterministically.
type Synthesizer struct {
	mu     sync.Mutex
	spoken []string
	busy   bool
	stops  int
	closed bool

	// Err, when set, is returned by every Speak call.
	Err error

	// SpeakFunc, when set, is invoked after recording the text and its
	// return value is returned by Speak.
	SpeakFunc func(text string) error
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Speak implements tts.Synthesizer. Returns tts.ErrBusy while SetBusy(true)
// is in effect; otherwise records the text.
func (s *Synthesizer) Speak(text string) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return tts.ErrBusy
	}
	s.spoken = append(s.spoken, text)
	fn := s.SpeakFunc
	err := s.Err
	s.mu.Unlock()

	if fn != nil {
		return fn(text)
	}
	return err
}

// Busy implements tts.Synthesizer.
func (s *Synthesizer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// SetBusy sets the reported busy state.
func (s *Synthesizer) SetBusy(busy bool) {
	s.mu.Lock()
	s.busy = busy
	s.mu.Unlock()
}

// Stop implements tts.Synthesizer. It clears the busy state and counts the
// call.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	s.busy = false
	s.stops++
	s.mu.Unlock()
}

// Close implements tts.Synthesizer.
func (s *Synthesizer) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Spoken returns a copy of all texts passed to Speak.
func (s *Synthesizer) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// StopCallCount returns how many times Stop was called.
func (s *Synthesizer) StopCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Closed reports whether Close was called.
func (s *Synthesizer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
