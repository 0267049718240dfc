package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Compile-time assertion that Microphone satisfies Device.
var _ Device = (*Microphone)(nil)

// CaptureConfig describes the input stream opened by NewMicrophone.
type CaptureConfig struct {
	// SampleRate in Hz. 16000 is the standard rate for speech recognition.
	SampleRate int

	// FrameDuration is the length of each delivered Frame. The capture
	// callback fires once per frame.
	FrameDuration time.Duration
}

// Microphone captures mono audio from the default input device via
// portaudio. Each hardware buffer is copied into an immutable Frame and
// handed to the Start callback; the callback runs on portaudio's capture
// thread and must only enqueue, never block.
type Microphone struct {
	cfg CaptureConfig

	mu      sync.Mutex
	stream  *portaudio.Stream
	started bool
	closed  bool
}

// NewMicrophone initialises portaudio and opens the default input stream.
// The stream does not deliver frames until Start is called. The caller must
// call Close to release the device, even if Start was never called.
func NewMicrophone(cfg CaptureConfig) (*Microphone, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("audio: capture sample rate must be positive")
	}
	if cfg.FrameDuration <= 0 {
		return nil, errors.New("audio: capture frame duration must be positive")
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: initialize portaudio: %w", err)
	}
	return &Microphone{cfg: cfg}, nil
}

// Start opens the input stream and begins delivering frames to onFrame.
func (m *Microphone) Start(onFrame func(Frame)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("audio: microphone is closed")
	}
	if m.started {
		return errors.New("audio: microphone already started")
	}

	frameSamples := int(float64(m.cfg.SampleRate) * m.cfg.FrameDuration.Seconds())
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.cfg.SampleRate), frameSamples,
		func(in []float32) {
			// Copy out of the device buffer: portaudio reuses it.
			samples := make([]float32, len(in))
			copy(samples, in)
			onFrame(Frame{
				Samples:    samples,
				SampleRate: m.cfg.SampleRate,
				CapturedAt: time.Now(),
			})
		})
	if err != nil {
		return fmt.Errorf("audio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("audio: start input stream: %w", err)
	}

	m.stream = stream
	m.started = true
	return nil
}

// Stop halts frame delivery. Safe to call multiple times and safe to call
// while a capture callback is mid-flight; portaudio drains the callback
// before Stop returns.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil || !m.started {
		return nil
	}
	m.started = false
	if err := m.stream.Stop(); err != nil {
		return fmt.Errorf("audio: stop input stream: %w", err)
	}
	return nil
}

// Close releases the stream and terminates portaudio. The terminate call
// runs even when closing the stream fails. Safe to call multiple times.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if m.stream != nil {
		if err := m.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audio: close input stream: %w", err))
		}
		m.stream = nil
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("audio: terminate portaudio: %w", err))
	}
	return errors.Join(errs...)
}
