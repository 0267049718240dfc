package resilience

import (
	"context"

	"github.com/vesperd/vesper/pkg/provider/llm"
)

// FallbackResponder implements [llm.Responder] with automatic failover
// across multiple generation backends, e.g. a remote API with a local
// Ollama fallback.
type FallbackResponder struct {
	chain *Chain[llm.Responder]
}

var _ llm.Responder = (*FallbackResponder)(nil)

// NewFallbackResponder creates a FallbackResponder with primary as the
// preferred backend.
func NewFallbackResponder(primaryName string, primary llm.Responder, cfg BreakerConfig) *FallbackResponder {
	return &FallbackResponder{chain: NewChain(primaryName, primary, cfg)}
}

// Add registers an additional responder as a fallback.
func (f *FallbackResponder) Add(name string, r llm.Responder) {
	f.chain.Add(name, r)
}

// Reply asks the first healthy responder for a reply.
func (f *FallbackResponder) Reply(ctx context.Context, command, convContext string) (string, error) {
	return DoResult(f.chain, func(r llm.Responder) (string, error) {
		return r.Reply(ctx, command, convContext)
	})
}
