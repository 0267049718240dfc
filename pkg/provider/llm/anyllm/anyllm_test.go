package anyllm

import (
	"testing"

	"github.com/vesperd/vesper/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "llama3.2"); err == nil {
		t.Error("New with empty providerName returned nil error")
	}
	if _, err := New("ollama", ""); err == nil {
		t.Error("New with empty model returned nil error")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	t.Parallel()

	if _, err := New("watson", "jeopardy-v1"); err == nil {
		t.Error("New with unsupported provider returned nil error")
	}
}

func TestNew_LocalBackends(t *testing.T) {
	t.Parallel()

	// Local backends need no API key, so construction must succeed.
	for _, name := range []string{"ollama", "llamacpp", "llamafile"} {
		r, err := New(name, "llama3.2")
		if err != nil {
			t.Errorf("New(%q): %v", name, err)
			continue
		}
		if r.systemPrompt != llm.DefaultSystemPrompt {
			t.Errorf("New(%q): system prompt not defaulted", name)
		}
	}
}

func TestNewWithOptions_Overrides(t *testing.T) {
	t.Parallel()

	r, err := NewWithOptions("ollama", "llama3.2", nil, []ResponderOption{
		WithSystemPrompt("Answer tersely."),
		WithMaxTokens(64),
		WithTemperature(0.7),
	})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	if r.systemPrompt != "Answer tersely." {
		t.Errorf("systemPrompt = %q", r.systemPrompt)
	}
	if r.maxTokens != 64 {
		t.Errorf("maxTokens = %d, want 64", r.maxTokens)
	}
	if r.temperature != 0.7 {
		t.Errorf("temperature = %f, want 0.7", r.temperature)
	}
}
