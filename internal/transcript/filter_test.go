package transcript

import "testing"

func TestFilter_IsHallucination(t *testing.T) {
	t.Parallel()

	f := NewFilter()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "known phrase with punctuation", text: "thank you.", want: true},
		{name: "known phrase", text: "thanks for watching", want: true},
		{name: "known phrase mixed case", text: "Thank You", want: true},
		{name: "real command", text: "turn on the lights", want: false},
		{name: "repetition", text: "go go go go go go", want: true},
		{name: "too short", text: "hi", want: true},
		{name: "empty", text: "", want: true},
		{name: "whitespace only", text: "   ", want: true},
		{name: "caption artifact", text: "subtitles transcribed by the community", want: true},
		{name: "copyright artifact", text: "copyright 2024 all rights reserved", want: true},
		{name: "artifact word alone is too short to trigger", text: "play music", want: false},
		{name: "half distinct words", text: "yes yes no no", want: true},
		{name: "mostly distinct words", text: "what is the weather like today", want: false},
		{name: "question", text: "jarvis what time is it", want: false},
		{name: "filler", text: "um", want: true},
		{name: "trailing punctuation stripped before length check", text: "a.!?", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := f.IsHallucination(tt.text); got != tt.want {
				t.Errorf("IsHallucination(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestFilter_ExtraPhrases(t *testing.T) {
	t.Parallel()

	f := NewFilter(WithExtraPhrases("niente da segnalare"))

	if !f.IsHallucination("Niente da segnalare.") {
		t.Error("configured extra phrase was not rejected")
	}
	if f.IsHallucination("molto da segnalare qui") {
		t.Error("unrelated phrase was rejected")
	}
}

func TestFilter_ExtraArtifacts(t *testing.T) {
	t.Parallel()

	f := NewFilter(WithExtraArtifacts("untertitel"))

	if !f.IsHallucination("untertitel im auftrag des zdf") {
		t.Error("configured extra artifact was not rejected")
	}
}
