// Package llm defines the response-generation interface used by the turn
// coordinator, together with the defaults shared by its implementations.
//
// Implementations live in subpackages:
//   - openai: the OpenAI chat completions API (or any compatible endpoint
//     via a custom base URL)
//   - anyllm: a universal adapter over github.com/mozilla-ai/any-llm-go
//     (Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, llama.cpp, ...)
//   - mock: an in-memory implementation for tests
package llm

import "context"

// Responder generates a spoken reply to a user command.
type Responder interface {
	// Reply produces the assistant's reply to command. context carries the
	// recent conversation transcript ("User: ...\nVesper: ..." lines) and
	// may be empty on the first exchange.
	Reply(ctx context.Context, command, context string) (string, error)
}

// DefaultSystemPrompt instructs the model to answer as a voice assistant:
// replies are spoken aloud, so they must stay short and natural.
const DefaultSystemPrompt = `You are Vesper, a helpful voice assistant. Be concise and helpful.
If asked to play music, ask whether to use the browser or a music app.
Keep responses brief and natural for voice interaction.`

// Defaults for reply generation. Replies are spoken, so a small completion
// budget and low temperature keep them short and predictable.
const (
	DefaultMaxTokens   = 128
	DefaultTemperature = 0.3
)

// EmptyReplyFallback is spoken when the model returns an empty completion.
const EmptyReplyFallback = "I'm here to help. What would you like me to do?"
