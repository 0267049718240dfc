package listen

import (
	"math"
	"sync"

	"github.com/mjibson/go-dsp/fft"

	"github.com/vesperd/vesper/pkg/audio"
)

const (
	// fluxFFTSize is the number of leading samples analysed per frame for
	// spectral flux. At 16 kHz this covers 64 ms, enough to track spectral
	// movement between half-second frames.
	fluxFFTSize = 1024

	// minObservations is the frame count required before Diagnose commits
	// to a verdict. At two frames per second this is roughly a minute.
	minObservations = 100

	// fluxActivityFloor is the mean spectral flux above which the signal is
	// considered to contain real acoustic activity.
	fluxActivityFloor = 1e-4
)

// Calibration accumulates per-frame classification statistics and a
// spectral-flux reading so misconfigured thresholds can be detected at
// runtime: thresholds set too high classify everything as silence, too low
// classify everything as speech. Neither is auto-corrected; Diagnose only
// reports.
//
// All methods are safe for concurrent use.
type Calibration struct {
	mu sync.Mutex

	frames  int
	speech  int
	peakSum float64
	rmsSum  float64

	prevSpectrum []float64
	fluxSum      float64
	fluxN        int
}

// NewCalibration creates an empty tracker.
func NewCalibration() *Calibration {
	return &Calibration{}
}

// Observe records one frame and its speech/silence classification.
func (c *Calibration) Observe(samples []float32, speech bool) {
	spectrum := magnitudeSpectrum(samples)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames++
	if speech {
		c.speech++
	}
	c.peakSum += audio.Peak(samples)
	c.rmsSum += audio.RMS(samples)

	if c.prevSpectrum != nil && len(spectrum) == len(c.prevSpectrum) {
		c.fluxSum += spectralFlux(c.prevSpectrum, spectrum)
		c.fluxN++
	}
	c.prevSpectrum = spectrum
}

// Diagnosis summarises the observed stream and flags threshold
// misconfiguration.
type Diagnosis struct {
	// Frames is the number of observed frames.
	Frames int

	// SpeechRatio is the fraction of frames classified as speech.
	SpeechRatio float64

	// MeanPeak and MeanRMS are the average per-frame levels.
	MeanPeak float64
	MeanRMS  float64

	// MeanFlux is the average spectral flux between consecutive frames.
	// Flux near zero means the spectrum is static (a dead or disconnected
	// input); flux above fluxActivityFloor indicates real activity.
	MeanFlux float64

	// AllSilence is set when no frame was classified as speech despite the
	// spectrum showing activity, suggesting thresholds set too high.
	AllSilence bool

	// AllSpeech is set when every frame was classified as speech,
	// suggesting thresholds set too low for the ambient noise floor.
	AllSpeech bool
}

// Misconfigured reports whether either degenerate classification was
// detected.
func (d Diagnosis) Misconfigured() bool {
	return d.AllSilence || d.AllSpeech
}

// Diagnose returns the current diagnosis. ok is false until enough frames
// have been observed for the verdict to be meaningful.
func (c *Calibration) Diagnose() (d Diagnosis, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frames == 0 {
		return Diagnosis{}, false
	}

	d = Diagnosis{
		Frames:      c.frames,
		SpeechRatio: float64(c.speech) / float64(c.frames),
		MeanPeak:    c.peakSum / float64(c.frames),
		MeanRMS:     c.rmsSum / float64(c.frames),
	}
	if c.fluxN > 0 {
		d.MeanFlux = c.fluxSum / float64(c.fluxN)
	}
	if c.frames < minObservations {
		return d, false
	}

	d.AllSilence = c.speech == 0 && d.MeanFlux >= fluxActivityFloor
	d.AllSpeech = c.speech == c.frames
	return d, true
}

// magnitudeSpectrum returns the normalized magnitude spectrum of the first
// fluxFFTSize samples (zero-padded when shorter).
func magnitudeSpectrum(samples []float32) []float64 {
	in := make([]float64, fluxFFTSize)
	n := len(samples)
	if n > fluxFFTSize {
		n = fluxFFTSize
	}
	for i := 0; i < n; i++ {
		in[i] = float64(samples[i])
	}

	out := fft.FFTReal(in)
	bins := len(out) / 2
	spectrum := make([]float64, bins)
	for i := 0; i < bins; i++ {
		spectrum[i] = math.Hypot(real(out[i]), imag(out[i])) / float64(fluxFFTSize)
	}
	return spectrum
}

// spectralFlux is the mean positive magnitude change between two spectra.
func spectralFlux(prev, cur []float64) float64 {
	var sum float64
	for i := range cur {
		if d := cur[i] - prev[i]; d > 0 {
			sum += d
		}
	}
	return sum / float64(len(cur))
}
