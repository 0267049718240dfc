// Package mock provides an in-memory llm.Responder for tests.
package mock

import (
	"context"
	"sync"

	"github.com/vesperd/vesper/pkg/provider/llm"
)

// Call records one Reply invocation.
type Call struct {
	Command string
	Context string
}

// Responder is a mock implementation of llm.Responder that records calls and
// returns queued replies.
type Responder struct {
	mu    sync.Mutex
	calls []Call

	// Replies are returned in order; after the queue is exhausted the last
	// entry repeats. When empty, Reply echoes the command.
	Replies []string
	next    int

	// Err, when set, is returned by every Reply call.
	Err error

	// ReplyFunc, when set, overrides the queued-reply behavior entirely.
	ReplyFunc func(ctx context.Context, command, convContext string) (string, error)
}

var _ llm.Responder = (*Responder)(nil)

// Reply implements llm.Responder.
func (r *Responder) Reply(ctx context.Context, command, convContext string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Command: command, Context: convContext})
	fn := r.ReplyFunc
	err := r.Err
	var reply string
	if len(r.Replies) > 0 {
		reply = r.Replies[r.next]
		if r.next < len(r.Replies)-1 {
			r.next++
		}
	} else {
		reply = command
	}
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, command, convContext)
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// Calls returns a copy of all recorded calls.
func (r *Responder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
