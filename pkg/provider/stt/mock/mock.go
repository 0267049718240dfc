// Package mock provides a scriptable test double for stt.Transcriber.
package mock

import (
	"context"
	"sync"

	"github.com/vesperd/vesper/pkg/provider/stt"
)

// Call records the arguments of one Transcribe invocation.
type Call struct {
	Samples    []float32
	SampleRate int
}

// Transcriber is a mock implementation of stt.Transcriber. Results are
// returned from the Results queue in order; once the queue is exhausted the
// zero Result is returned. Set Err to make every call fail, or set
// TranscribeFunc for full control.
type Transcriber struct {
	mu sync.Mutex

	// TranscribeFunc, if non-nil, is invoked instead of the default
	// queue-based behaviour.
	TranscribeFunc func(ctx context.Context, samples []float32, sampleRate int) (stt.Result, error)

	// Results are returned in order by successive Transcribe calls.
	Results []stt.Result

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	calls          []Call
	next           int
	CloseCallCount int
}

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records the call and returns the next scripted result.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Result, error) {
	t.mu.Lock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	t.calls = append(t.calls, Call{Samples: cp, SampleRate: sampleRate})
	fn := t.TranscribeFunc
	if fn == nil {
		if t.Err != nil {
			err := t.Err
			t.mu.Unlock()
			return stt.Result{}, err
		}
		var res stt.Result
		if t.next < len(t.Results) {
			res = t.Results[t.next]
			t.next++
		}
		t.mu.Unlock()
		return res, nil
	}
	t.mu.Unlock()
	return fn(ctx, samples, sampleRate)
}

// Close records the call and returns nil.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CloseCallCount++
	return nil
}

// Calls returns a copy of all recorded Transcribe calls.
func (t *Transcriber) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}
