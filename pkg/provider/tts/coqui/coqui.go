// Package coqui provides a Synthesizer backed by a locally-running Coqui TTS
// server, with playback through the default output device.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts
//     with URL query parameters.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is
//     performed via POST /tts_to_audio/ with a JSON body.
//
// Typical usage:
//
//	s, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	if err := s.Speak("Hello there."); errors.Is(err, tts.ErrBusy) {
//	    // an utterance is already playing
//	}
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vesperd/vesper/pkg/audio"
	"github.com/vesperd/vesper/pkg/provider/tts"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	ttsEndpoint    = "/tts_to_audio/"
	apiTTSEndpoint = "/api/tts"
)

// APIMode selects which Coqui server API the synthesizer will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// Player plays decoded PCM. *audio.Player satisfies it; tests substitute
// their own.
type Player interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
	Close() error
}

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithLanguage sets the BCP-47 language code sent to the TTS server (e.g.,
// "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) {
		s.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		s.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for
// the standard Coqui TTS Docker image or APIModeXTTS for the XTTS v2 API
// server.
func WithAPIMode(mode APIMode) Option {
	return func(s *Synthesizer) {
		s.apiMode = mode
	}
}

// WithVoice sets the voice identifier: a speaker_id for the standard server,
// or a speaker WAV reference for XTTS.
func WithVoice(id string) Option {
	return func(s *Synthesizer) {
		s.voice = id
	}
}

// WithPlayer substitutes the playback backend. The Synthesizer takes
// ownership and closes it on Close.
func WithPlayer(p Player) Option {
	return func(s *Synthesizer) {
		s.player = p
	}
}

// WithLogger sets the logger used for background synthesis failures.
func WithLogger(log *slog.Logger) Option {
	return func(s *Synthesizer) {
		s.log = log
	}
}

// WithTimingFunc installs a hook invoked after each utterance with the
// synthesis duration (HTTP round-trip plus decode, not playback) and its
// error, if any.
func WithTimingFunc(fn func(d time.Duration, err error)) Option {
	return func(s *Synthesizer) {
		s.timing = fn
	}
}

// Synthesizer implements tts.Synthesizer against a Coqui TTS server. Speak
// runs synthesis and playback in a background goroutine; at most one
// utterance is in flight at a time.
type Synthesizer struct {
	serverURL  string
	language   string
	voice      string
	apiMode    APIMode
	httpClient *http.Client
	player     Player
	log        *slog.Logger
	timing     func(d time.Duration, err error)

	busy atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ttsRequest is the JSON body for the XTTS /tts_to_audio/ endpoint.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav,omitempty"`
	Language   string `json:"language,omitempty"`
}

// New creates a Synthesizer targeting the TTS server at serverURL (e.g.,
// "http://localhost:5002"). Unless WithPlayer is given, playback goes
// through the default output device.
func New(serverURL string, opts ...Option) (*Synthesizer, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}

	s := &Synthesizer{
		serverURL:  serverURL,
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	if s.player == nil {
		player, err := audio.NewPlayer()
		if err != nil {
			return nil, fmt.Errorf("coqui: open playback device: %w", err)
		}
		s.player = player
	}
	return s, nil
}

// Speak implements tts.Synthesizer.
func (s *Synthesizer) Speak(text string) error {
	if text == "" {
		return nil
	}
	if !s.busy.CompareAndSwap(false, true) {
		return tts.ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		defer cancel()

		start := time.Now()
		samples, rate, err := s.synthesize(ctx, text)
		if s.timing != nil {
			s.timing(time.Since(start), err)
		}
		if err != nil {
			s.log.Error("speech synthesis failed", "error", err)
			return
		}

		if err := s.player.Play(ctx, samples, rate); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("speech playback failed", "error", err)
		}
	}()
	return nil
}

// Busy implements tts.Synthesizer.
func (s *Synthesizer) Busy() bool {
	return s.busy.Load()
}

// Stop implements tts.Synthesizer.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

// Close implements tts.Synthesizer. It interrupts any current utterance,
// waits for the background goroutine to finish, and releases the playback
// device.
func (s *Synthesizer) Close() error {
	s.Stop()
	s.wg.Wait()
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("coqui: close player: %w", err)
	}
	return nil
}

// synthesize performs one HTTP synthesis call and decodes the WAV response.
func (s *Synthesizer) synthesize(ctx context.Context, text string) ([]float32, int, error) {
	var (
		wav []byte
		err error
	)
	if s.apiMode == APIModeXTTS {
		wav, err = s.synthesizeXTTS(ctx, text)
	} else {
		wav, err = s.synthesizeStandard(ctx, text)
	}
	if err != nil {
		return nil, 0, err
	}

	samples, rate, err := audio.DecodeWAV(bytes.NewReader(wav))
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: %w", err)
	}
	return samples, rate, nil
}

// synthesizeXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode)
// and returns the WAV response body.
func (s *Synthesizer) synthesizeXTTS(ctx context.Context, text string) ([]byte, error) {
	body := ttsRequest{
		Text:       text,
		SpeakerWav: s.voice,
		Language:   s.language,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	return s.doSynthRequest(req, http.MethodPost, ttsEndpoint)
}

// synthesizeStandard performs a single GET /api/tts request (standard server
// mode) using URL query parameters and returns the WAV response body.
func (s *Synthesizer) synthesizeStandard(ctx context.Context, text string) ([]byte, error) {
	params := url.Values{}
	params.Set("text", text)
	if s.voice != "" {
		params.Set("speaker_id", s.voice)
	}
	if s.language != "" {
		params.Set("language_id", s.language)
	}

	reqURL := s.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	return s.doSynthRequest(req, http.MethodGet, apiTTSEndpoint)
}

func (s *Synthesizer) doSynthRequest(req *http.Request, method, endpoint string) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", method, endpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}
