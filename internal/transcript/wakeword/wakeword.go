// Package wakeword decides whether a transcript is addressed to the
// assistant and extracts the command that follows the wake word.
//
// Matching proceeds in three stages of decreasing confidence:
//
//  1. Exact substring match against the configured wake word.
//  2. Substring match against a fixed list of known recognizer confusions
//     (near-homophones a speech recognizer commonly substitutes).
//  3. Phonetic fallback: per-token Double Metaphone code overlap with the
//     wake word, ranked by Jaro-Winkler similarity; a pure Jaro-Winkler
//     pass with a stricter threshold catches close misspellings with no
//     phonetic overlap.
//
// Exit phrases are checked before any wake-word matching and take priority:
// a transcript equal to an exit phrase, or combining an exit phrase with the
// wake word, requests shutdown directly.
package wakeword

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// defaultConfusions are near-homophone substitutions speech recognizers
// commonly produce for two-syllable assistant wake words. Deployments
// should replace this list with confusions observed for their own wake
// word via WithConfusions.
var defaultConfusions = []string{"javis", "travis", "davis", "service", "harvest"}

// defaultExitPhrases request shutdown when spoken alone or together with the
// wake word.
var defaultExitPhrases = []string{"exit", "quit", "shutdown", "close"}

// Outcome classifies the result of extracting a transcript.
type Outcome int

const (
	// OutcomeNone means no wake word was found; the transcript is not
	// addressed to the assistant and is discarded.
	OutcomeNone Outcome = iota

	// OutcomeCommand means a wake word was found and a non-empty command
	// remained after stripping it.
	OutcomeCommand

	// OutcomeAcknowledge means the wake word was spoken alone; the
	// assistant should answer with a short acknowledgment.
	OutcomeAcknowledge

	// OutcomeExit means an exit phrase was detected; the assistant should
	// shut down.
	OutcomeExit
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCommand:
		return "command"
	case OutcomeAcknowledge:
		return "acknowledge"
	case OutcomeExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Extraction is the result of matching one transcript.
type Extraction struct {
	Outcome Outcome

	// Command is the remaining command text. Set only for OutcomeCommand.
	Command string

	// Match names the mechanism that detected the wake word: "exact",
	// "confusion", "phonetic", or "exit". Empty for OutcomeNone.
	Match string

	// Word is the wake-word variant that matched in the transcript.
	Word string
}

// Extractor matches transcripts against a configured wake word. It is
// read-only after construction and safe for concurrent use.
type Extractor struct {
	wakeWord          string
	wakeCodes         map[string]struct{}
	confusions        []string
	exitPhrases       []string
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// Option is a functional option for configuring an Extractor.
type Option func(*Extractor)

// WithConfusions replaces the confusion list. Entries are matched as
// substrings, case-insensitively.
func WithConfusions(confusions ...string) Option {
	return func(e *Extractor) {
		e.confusions = lowered(confusions)
	}
}

// WithExitPhrases replaces the exit phrase list.
func WithExitPhrases(phrases ...string) Option {
	return func(e *Extractor) {
		e.exitPhrases = lowered(phrases)
	}
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically-overlapping token to count as the wake word. Default: 0.70.
// Set above 1 to disable the phonetic fallback entirely.
func WithPhoneticThreshold(threshold float64) Option {
	return func(e *Extractor) { e.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a token with no
// phonetic overlap to count as the wake word. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(e *Extractor) { e.fuzzyThreshold = threshold }
}

// New creates an Extractor for the given wake word with the default
// confusion list, exit phrases, and thresholds.
func New(wakeWord string, opts ...Option) *Extractor {
	e := &Extractor{
		wakeWord:          strings.ToLower(strings.TrimSpace(wakeWord)),
		confusions:        defaultConfusions,
		exitPhrases:       defaultExitPhrases,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(e)
	}
	e.wakeCodes = metaphoneCodes(e.wakeWord)
	return e
}

// Extract classifies the transcript and, when it is addressed to the
// assistant, strips the wake word and returns the remaining command.
func (e *Extractor) Extract(text string) Extraction {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Extraction{Outcome: OutcomeNone}
	}

	// Exit phrases take priority over wake-word matching.
	if phrase, ok := e.matchExit(lower); ok {
		return Extraction{Outcome: OutcomeExit, Match: "exit", Word: phrase}
	}

	word, mechanism := e.findWakeWord(lower)
	if word == "" {
		return Extraction{Outcome: OutcomeNone}
	}

	// Remove exactly one occurrence, then trim a single leading separator.
	command := strings.TrimSpace(strings.Replace(lower, word, "", 1))
	if strings.HasPrefix(command, ",") || strings.HasPrefix(command, ".") {
		command = strings.TrimSpace(command[1:])
	}

	if command == "" {
		return Extraction{Outcome: OutcomeAcknowledge, Match: mechanism, Word: word}
	}
	return Extraction{Outcome: OutcomeCommand, Command: command, Match: mechanism, Word: word}
}

// matchExit reports whether the transcript requests shutdown: either it
// equals an exit phrase exactly, or it contains an exit phrase as a word
// together with the wake word.
func (e *Extractor) matchExit(lower string) (string, bool) {
	for _, phrase := range e.exitPhrases {
		if lower == phrase {
			return phrase, true
		}
	}

	tokens := strings.Fields(lower)
	hasExit := ""
	for _, phrase := range e.exitPhrases {
		for _, tok := range tokens {
			if trimPunct(tok) == phrase {
				hasExit = phrase
				break
			}
		}
		if hasExit != "" {
			break
		}
	}
	if hasExit == "" {
		return "", false
	}
	if word, _ := e.findWakeWord(lower); word != "" {
		return hasExit, true
	}
	return "", false
}

// findWakeWord locates the wake word in the lowered transcript and returns
// the matched variant plus the mechanism that found it.
func (e *Extractor) findWakeWord(lower string) (word, mechanism string) {
	if e.wakeWord == "" {
		return "", ""
	}
	if strings.Contains(lower, e.wakeWord) {
		return e.wakeWord, "exact"
	}
	for _, c := range e.confusions {
		if strings.Contains(lower, c) {
			return c, "confusion"
		}
	}
	if e.phoneticThreshold > 1 {
		return "", ""
	}

	// Phonetic fallback: rank tokens by Jaro-Winkler, gated on Double
	// Metaphone code overlap with the wake word. Tokens without overlap
	// need the stricter fuzzy threshold.
	var bestToken string
	var bestScore float64
	for _, tok := range strings.Fields(lower) {
		tok = trimPunct(tok)
		if tok == "" {
			continue
		}
		score := matchr.JaroWinkler(tok, e.wakeWord, false)
		threshold := e.fuzzyThreshold
		if codesOverlap(metaphoneCodes(tok), e.wakeCodes) {
			threshold = e.phoneticThreshold
		}
		if score >= threshold && score > bestScore {
			bestToken, bestScore = tok, score
		}
	}
	if bestToken != "" {
		return bestToken, "phonetic"
	}
	return "", ""
}

// metaphoneCodes returns the Double Metaphone codes of word, excluding empty
// secondaries.
func metaphoneCodes(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// trimPunct strips surrounding sentence punctuation from a token.
func trimPunct(tok string) string {
	return strings.Trim(tok, ".,!?;:")
}

// lowered returns a copy of items with each entry lowercased and trimmed.
func lowered(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, strings.ToLower(strings.TrimSpace(it)))
	}
	return out
}
