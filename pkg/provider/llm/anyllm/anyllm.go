// Package anyllm provides a Responder backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// local llama.cpp / llamafile servers.
//
// Usage:
//
//	r, err := anyllm.New("ollama", "llama3.2")
//	r, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/vesperd/vesper/pkg/provider/llm"
)

// Responder implements llm.Responder by wrapping any-llm-go.
type Responder struct {
	backend      anyllmlib.Provider
	model        string
	systemPrompt string
	maxTokens    int
	temperature  float64
}

var _ llm.Responder = (*Responder)(nil)

// ResponderOption configures the Responder itself; backend credentials and
// endpoints are passed through as anyllmlib options on New.
type ResponderOption func(*Responder)

// WithSystemPrompt replaces llm.DefaultSystemPrompt.
func WithSystemPrompt(prompt string) ResponderOption {
	return func(r *Responder) {
		r.systemPrompt = prompt
	}
}

// WithMaxTokens overrides llm.DefaultMaxTokens.
func WithMaxTokens(n int) ResponderOption {
	return func(r *Responder) {
		r.maxTokens = n
	}
}

// WithTemperature overrides llm.DefaultTemperature.
func WithTemperature(t float64) ResponderOption {
	return func(r *Responder) {
		r.temperature = t
	}
}

// New creates a Responder backed by the given provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile". If no API key
// option is given, the backend falls back to its usual environment variable
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, and so on).
func New(providerName, model string, opts ...anyllmlib.Option) (*Responder, error) {
	return NewWithOptions(providerName, model, opts, nil)
}

// NewWithOptions is New with additional Responder-level options.
func NewWithOptions(providerName, model string, backendOpts []anyllmlib.Option, respOpts []ResponderOption) (*Responder, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	r := &Responder{
		backend:      backend,
		model:        model,
		systemPrompt: llm.DefaultSystemPrompt,
		maxTokens:    llm.DefaultMaxTokens,
		temperature:  llm.DefaultTemperature,
	}
	for _, o := range respOpts {
		o(r)
	}
	return r, nil
}

// Reply implements llm.Responder.
func (r *Responder) Reply(ctx context.Context, command, convContext string) (string, error) {
	msgs := []anyllmlib.Message{
		{Role: anyllmlib.RoleSystem, Content: r.systemPrompt},
	}
	if convContext != "" {
		msgs = append(msgs, anyllmlib.Message{
			Role:    anyllmlib.RoleUser,
			Content: "Recent conversation:\n" + convContext,
		})
	}
	msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleUser, Content: command})

	temp := r.temperature
	maxTokens := r.maxTokens
	resp, err := r.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model:       r.model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.EmptyReplyFallback, nil
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if reply == "" {
		return llm.EmptyReplyFallback, nil
	}
	return reply, nil
}

// createBackend creates the underlying any-llm-go provider for the given
// provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}
