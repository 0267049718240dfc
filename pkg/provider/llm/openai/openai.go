// Package openai provides a Responder backed by the OpenAI chat completions
// API. Any OpenAI-compatible endpoint can be targeted via WithBaseURL.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/vesperd/vesper/pkg/provider/llm"
)

// Responder implements llm.Responder using the OpenAI API.
type Responder struct {
	client       oai.Client
	model        string
	systemPrompt string
	maxTokens    int64
	temperature  float64
}

var _ llm.Responder = (*Responder)(nil)

// config holds optional configuration for the Responder.
type config struct {
	baseURL      string
	timeout      time.Duration
	systemPrompt string
	maxTokens    int64
	temperature  float64
}

// Option is a functional option for Responder.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. to point at a
// local OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithSystemPrompt replaces llm.DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) {
		c.systemPrompt = prompt
	}
}

// WithMaxTokens overrides llm.DefaultMaxTokens.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		c.maxTokens = int64(n)
	}
}

// WithTemperature overrides llm.DefaultTemperature.
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// New constructs a new OpenAI Responder.
func New(apiKey string, model string, opts ...Option) (*Responder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{
		systemPrompt: llm.DefaultSystemPrompt,
		maxTokens:    llm.DefaultMaxTokens,
		temperature:  llm.DefaultTemperature,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Responder{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		systemPrompt: cfg.systemPrompt,
		maxTokens:    cfg.maxTokens,
		temperature:  cfg.temperature,
	}, nil
}

// Reply implements llm.Responder.
func (r *Responder) Reply(ctx context.Context, command, convContext string) (string, error) {
	resp, err := r.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(r.model),
		Messages:            r.buildMessages(command, convContext),
		Temperature:         param.NewOpt(r.temperature),
		MaxCompletionTokens: param.NewOpt(r.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.EmptyReplyFallback, nil
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return llm.EmptyReplyFallback, nil
	}
	return reply, nil
}

// buildMessages assembles the chat turn: the system prompt, the recent
// conversation (when present) as a user-visible preamble, and the command.
func (r *Responder) buildMessages(command, convContext string) []oai.ChatCompletionMessageParamUnion {
	msgs := []oai.ChatCompletionMessageParamUnion{
		oai.SystemMessage(r.systemPrompt),
	}
	if convContext != "" {
		msgs = append(msgs, oai.UserMessage("Recent conversation:\n"+convContext))
	}
	return append(msgs, oai.UserMessage(command))
}
