package listen

import (
	"math"
	"testing"
)

// sine returns n samples of a sine wave at the given frequency and rate.
func sine(freq float64, n, rate int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestCalibration_InsufficientObservations(t *testing.T) {
	t.Parallel()

	cal := NewCalibration()
	for i := 0; i < minObservations-1; i++ {
		cal.Observe(sine(440, 2048, 16000, 0.5), true)
	}
	if _, ok := cal.Diagnose(); ok {
		t.Error("Diagnose ok=true below the minimum observation count")
	}
}

func TestCalibration_AllSpeech(t *testing.T) {
	t.Parallel()

	cal := NewCalibration()
	for i := 0; i < minObservations; i++ {
		cal.Observe(sine(440, 2048, 16000, 0.5), true)
	}

	d, ok := cal.Diagnose()
	if !ok {
		t.Fatal("Diagnose ok=false at the minimum observation count")
	}
	if !d.AllSpeech {
		t.Error("AllSpeech = false for a stream classified entirely as speech")
	}
	if d.AllSilence {
		t.Error("AllSilence = true for an all-speech stream")
	}
	if !d.Misconfigured() {
		t.Error("Misconfigured = false, want true")
	}
	if d.SpeechRatio != 1 {
		t.Errorf("SpeechRatio = %f, want 1", d.SpeechRatio)
	}
}

func TestCalibration_AllSilenceWithActivity(t *testing.T) {
	t.Parallel()

	// Alternate frequencies so the spectrum keeps moving: real acoustic
	// activity that the (hypothetical) thresholds never classified as
	// speech.
	cal := NewCalibration()
	for i := 0; i < minObservations; i++ {
		freq := 440.0
		if i%2 == 1 {
			freq = 1760.0
		}
		cal.Observe(sine(freq, 2048, 16000, 0.5), false)
	}

	d, ok := cal.Diagnose()
	if !ok {
		t.Fatal("Diagnose ok=false at the minimum observation count")
	}
	if !d.AllSilence {
		t.Errorf("AllSilence = false with mean flux %g, want true", d.MeanFlux)
	}
	if !d.Misconfigured() {
		t.Error("Misconfigured = false, want true")
	}
}

func TestCalibration_DeadInputIsNotFlagged(t *testing.T) {
	t.Parallel()

	// A silent, static input (disconnected mic) produces no flux; that is
	// not a threshold problem.
	cal := NewCalibration()
	for i := 0; i < minObservations; i++ {
		cal.Observe(make([]float32, 2048), false)
	}

	d, ok := cal.Diagnose()
	if !ok {
		t.Fatal("Diagnose ok=false at the minimum observation count")
	}
	if d.AllSilence {
		t.Error("AllSilence = true for a dead input with no spectral activity")
	}
}

func TestCalibration_MixedStreamIsHealthy(t *testing.T) {
	t.Parallel()

	cal := NewCalibration()
	for i := 0; i < minObservations; i++ {
		cal.Observe(sine(440, 2048, 16000, 0.5), i%3 == 0)
	}

	d, ok := cal.Diagnose()
	if !ok {
		t.Fatal("Diagnose ok=false at the minimum observation count")
	}
	if d.Misconfigured() {
		t.Errorf("Misconfigured = true for a mixed stream (ratio %f)", d.SpeechRatio)
	}
	if d.SpeechRatio <= 0 || d.SpeechRatio >= 1 {
		t.Errorf("SpeechRatio = %f, want strictly between 0 and 1", d.SpeechRatio)
	}
}
