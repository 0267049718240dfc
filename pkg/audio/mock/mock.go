// Package mock provides test doubles for the audio package interfaces.
//
// Use Device to script frame delivery in pipeline tests:
//
//	dev := &mock.Device{}
//	dev.Start(onFrame)
//	dev.Emit(audio.Frame{Samples: samples, SampleRate: 16000})
package mock

import (
	"sync"

	"github.com/vesperd/vesper/pkg/audio"
)

// Device is a mock implementation of audio.Device. Frames are delivered
// synchronously from Emit on the caller's goroutine.
type Device struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	onFrame func(audio.Frame)
	started bool

	// StartCallCount, StopCallCount, and CloseCallCount record invocations.
	StartCallCount int
	StopCallCount  int
	CloseCallCount int
}

// Compile-time assertion that Device implements audio.Device.
var _ audio.Device = (*Device)(nil)

// Start records the callback and marks the device started.
func (d *Device) Start(onFrame func(audio.Frame)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StartCallCount++
	if d.StartErr != nil {
		return d.StartErr
	}
	d.onFrame = onFrame
	d.started = true
	return nil
}

// Stop marks the device stopped. Frames emitted after Stop are discarded.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StopCallCount++
	d.started = false
	return d.StopErr
}

// Close records the call.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	d.started = false
	return d.CloseErr
}

// Emit delivers a frame to the Start callback if the device is started.
// Returns true if the frame was delivered.
func (d *Device) Emit(frame audio.Frame) bool {
	d.mu.Lock()
	cb := d.onFrame
	ok := d.started && cb != nil
	d.mu.Unlock()
	if ok {
		cb(frame)
	}
	return ok
}

// Started reports whether the device is currently delivering frames.
func (d *Device) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}
