// Package stt defines the Transcriber interface for speech-to-text backends.
//
// Vesper transcribes bounded utterance windows rather than open streams: the
// speech segmenter accumulates a window of samples, flushes a trailing slice,
// and hands it to a Transcriber in a single call. A call may block for
// several seconds and is treated as fallible; it must never run on the
// audio-capture path.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Result is the outcome of a single transcription call.
type Result struct {
	// Text is the recognised text, whitespace-trimmed. Empty when the audio
	// contained no recognisable speech.
	Text string

	// Duration is the wall-clock time the backend spent on the call.
	Duration time.Duration
}

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe recognises speech in normalized mono float32 samples at the
	// given sample rate.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error)

	// Close releases backend resources. Calling Close more than once is safe.
	Close() error
}
