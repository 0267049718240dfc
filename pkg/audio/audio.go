// Package audio provides the audio transport primitives for the Vesper
// pipeline: the Frame type that flows from capture into segmentation, PCM
// format helpers, and portaudio-backed capture and playback devices.
package audio

import "time"

// Frame represents a single fixed-duration chunk of mono audio captured from
// the input device. Frames are immutable once produced: the capture callback
// copies the device buffer before handing the frame downstream.
type Frame struct {
	// Samples holds normalized float32 PCM in [-1, 1].
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for STT-optimised mono capture).
	SampleRate int

	// CapturedAt is the wall-clock time the frame was captured.
	CapturedAt time.Time
}

// Duration returns the play length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Device is a microphone-like audio source. Start begins delivering frames to
// the callback from the device's own capture thread; the callback must never
// block. Stop halts delivery; Close releases the underlying stream resources.
//
// Stop and Close are safe to call more than once and safe to call while a
// capture callback is in flight.
type Device interface {
	Start(onFrame func(Frame)) error
	Stop() error
	Close() error
}
