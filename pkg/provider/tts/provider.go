// Package tts defines the speech-synthesis interface used by the turn
// coordinator.
//
// Implementations live in subpackages:
//   - coqui: a Coqui TTS server (standard or XTTS v2 API) with local
//     playback through the default output device
//   - command: a system speech command such as say(1) or espeak(1)
//   - mock: an in-memory implementation for tests
package tts

import "errors"

// ErrBusy is returned by Speak when an utterance is already playing. The
// request is dropped, not queued; callers that must speak wait for Busy to
// clear first.
var ErrBusy = errors.New("tts: synthesizer busy")

// Synthesizer speaks text aloud. Speak is asynchronous: it starts synthesis
// and playback in the background and returns immediately, so the caller can
// keep processing audio while the assistant talks.
type Synthesizer interface {
	// Speak starts speaking text. Returns ErrBusy if an utterance is
	// already in progress.
	Speak(text string) error

	// Busy reports whether an utterance is currently being synthesised or
	// played.
	Busy() bool

	// Stop interrupts the current utterance, if any.
	Stop()

	// Close stops playback and releases resources.
	Close() error
}
