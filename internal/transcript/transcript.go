// Package transcript holds the transcript types flowing out of the speech
// segmenter and the hallucination filter that screens them.
package transcript

import "time"

// Transcript is one recognised utterance produced by the speech segmenter.
type Transcript struct {
	// Text is the recognised text, whitespace-trimmed, never empty.
	Text string

	// Latency is the wall-clock time the transcription call took.
	Latency time.Duration

	// At records when the transcript was produced.
	At time.Time
}
