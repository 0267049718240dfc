package transcript

import "strings"

// defaultPhrases are filler and sign-off phrases speech recognizers commonly
// emit over near-silence. Matched exactly against the normalized transcript.
var defaultPhrases = []string{
	"thank you", "thanks for watching", "thanks for listening",
	"subscribe", "like and subscribe", "see you next time",
	"bye", "goodbye", "you", ".", "...", "thank you.",
	"thanks", "okay", "ok", "um", "uh", "hmm", "ah",
	"please subscribe", "thanks for watching.",
	"for more information", "visit www", "www.fema.org",
	"i'm sorry", "i don't know", "what", "the", "a", "it",
}

// defaultArtifacts are substrings that indicate the recognizer transcribed
// its own training captions rather than spoken audio. Checked only for
// transcripts of three or more words.
var defaultArtifacts = []string{
	"analyzed", "transcribed", "subtitled", "captioned",
	"copyright", "all rights reserved", "music", "applause",
}

// Filter rejects recognizer hallucinations: filler phrases, too-short
// fragments, caption artifacts, and excessively repetitive text.
//
// Filter is pure and stateless after construction; it is safe for concurrent
// use.
type Filter struct {
	phrases   map[string]struct{}
	artifacts []string
}

// FilterOption is a functional option for configuring a Filter.
type FilterOption func(*Filter)

// WithExtraPhrases adds phrases to the exact-match rejection set.
func WithExtraPhrases(phrases ...string) FilterOption {
	return func(f *Filter) {
		for _, p := range phrases {
			f.phrases[normalize(p)] = struct{}{}
		}
	}
}

// WithExtraArtifacts adds substrings to the artifact rejection list.
func WithExtraArtifacts(artifacts ...string) FilterOption {
	return func(f *Filter) {
		for _, a := range artifacts {
			f.artifacts = append(f.artifacts, strings.ToLower(a))
		}
	}
}

// NewFilter creates a Filter with the default phrase and artifact sets.
func NewFilter(opts ...FilterOption) *Filter {
	f := &Filter{
		phrases:   make(map[string]struct{}, len(defaultPhrases)),
		artifacts: make([]string, 0, len(defaultArtifacts)),
	}
	for _, p := range defaultPhrases {
		f.phrases[p] = struct{}{}
	}
	f.artifacts = append(f.artifacts, defaultArtifacts...)
	for _, o := range opts {
		o(f)
	}
	return f
}

// IsHallucination reports whether text is a likely recognizer hallucination.
//
// The transcript is normalized (lowercased, trimmed, trailing punctuation
// stripped) and rejected when any of these hold:
//
//   - it matches a known filler phrase exactly
//   - it is shorter than three characters
//   - it has three or more words and contains a caption artifact substring
//   - it has three or more words and at most half of them are distinct
func (f *Filter) IsHallucination(text string) bool {
	clean := normalize(text)

	if _, known := f.phrases[clean]; known || len(clean) < 3 {
		return true
	}

	words := strings.Fields(clean)
	if len(words) < 3 {
		return false
	}

	for _, artifact := range f.artifacts {
		if strings.Contains(clean, artifact) {
			return true
		}
	}

	distinct := make(map[string]struct{}, len(words))
	for _, w := range words {
		distinct[w] = struct{}{}
	}
	return len(distinct) <= len(words)/2
}

// normalize lowercases text, trims surrounding whitespace, and strips
// trailing sentence punctuation.
func normalize(text string) string {
	clean := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(clean, ".!?,")
}
