// Package listen implements the always-on listening pipeline: a bounded
// frame buffer decoupling audio capture from processing, a speech segmenter
// that accumulates candidate utterances and flushes them to transcription,
// and calibration diagnostics for threshold tuning.
package listen

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vesperd/vesper/internal/observe"
	"github.com/vesperd/vesper/pkg/audio"
)

// DefaultBufferCapacity bounds the frame buffer. At the default 0.5 s frame
// duration this is 50 s of backlog, far more than the segmenter ever needs.
const DefaultBufferCapacity = 100

// dropLogInterval throttles the dropped-frame warning.
const dropLogInterval = 5 * time.Second

// FrameBuffer is a bounded queue between the capture callback and the
// segmentation goroutine. Push never blocks: when the buffer is full the
// incoming frame is dropped and counted. Downstream treats the gap as
// silence, so drops degrade quality but never correctness.
//
// All methods are safe for concurrent use.
type FrameBuffer struct {
	frames  chan audio.Frame
	dropped atomic.Int64

	log         *slog.Logger
	metrics     *observe.Metrics
	lastDropLog atomic.Int64 // unix nanos of the last drop warning
}

// BufferOption is a functional option for configuring a FrameBuffer.
type BufferOption func(*FrameBuffer)

// WithBufferLogger sets the logger used for drop warnings. Defaults to
// slog.Default().
func WithBufferLogger(log *slog.Logger) BufferOption {
	return func(b *FrameBuffer) { b.log = log }
}

// WithBufferMetrics sets the metrics instance recording captured and dropped
// frames. Defaults to no metrics.
func WithBufferMetrics(m *observe.Metrics) BufferOption {
	return func(b *FrameBuffer) { b.metrics = m }
}

// NewFrameBuffer creates a buffer holding at most capacity frames. A
// non-positive capacity falls back to DefaultBufferCapacity.
func NewFrameBuffer(capacity int, opts ...BufferOption) *FrameBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	b := &FrameBuffer{
		frames: make(chan audio.Frame, capacity),
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Push enqueues a frame without blocking. Returns false when the buffer was
// full and the frame was dropped.
func (b *FrameBuffer) Push(frame audio.Frame) bool {
	if b.metrics != nil {
		b.metrics.FramesCaptured.Add(context.Background(), 1)
	}
	select {
	case b.frames <- frame:
		return true
	default:
	}

	dropped := b.dropped.Add(1)
	if b.metrics != nil {
		b.metrics.FramesDropped.Add(context.Background(), 1)
	}

	// Throttle the warning: the capture callback fires twice a second and a
	// stalled consumer would otherwise flood the log.
	now := time.Now().UnixNano()
	last := b.lastDropLog.Load()
	if now-last >= int64(dropLogInterval) && b.lastDropLog.CompareAndSwap(last, now) {
		b.log.Warn("frame buffer full, dropping frames", "dropped_total", dropped)
	}
	return false
}

// Pop dequeues a frame, waiting up to timeout. Returns ok=false when the
// timeout elapsed with no frame available; a timeout is not an error.
func (b *FrameBuffer) Pop(timeout time.Duration) (audio.Frame, bool) {
	select {
	case frame := <-b.frames:
		return frame, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-b.frames:
		return frame, true
	case <-timer.C:
		return audio.Frame{}, false
	}
}

// Len returns the number of frames currently queued.
func (b *FrameBuffer) Len() int { return len(b.frames) }

// Dropped returns the total number of frames dropped since creation.
func (b *FrameBuffer) Dropped() int64 { return b.dropped.Load() }
