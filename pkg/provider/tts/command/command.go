// Package command provides a Synthesizer that shells out to a system speech
// command: say(1) on macOS, espeak(1) elsewhere. It needs no server and no
// audio device of its own, which makes it the fallback when a Coqui server
// is not configured or unreachable.
package command

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/vesperd/vesper/pkg/provider/tts"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithCommand overrides the speech command and its leading arguments; the
// text to speak is appended as the final argument.
func WithCommand(name string, args ...string) Option {
	return func(s *Synthesizer) {
		s.name = name
		s.args = args
	}
}

// WithLogger sets the logger used for background synthesis failures.
func WithLogger(log *slog.Logger) Option {
	return func(s *Synthesizer) {
		s.log = log
	}
}

// Synthesizer implements tts.Synthesizer by running a speech command per
// utterance in a background goroutine.
type Synthesizer struct {
	name string
	args []string
	log  *slog.Logger

	busy atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Synthesizer using the platform's default speech command.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		name: defaultCommand(),
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func defaultCommand() string {
	if runtime.GOOS == "darwin" {
		return "say"
	}
	return "espeak"
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

		args := append(append([]string(nil), s.args...), text)
		cmd := exec.CommandContext(ctx, s.name, args...)
		if err := cmd.Run(); err != nil && ctx.Err() == nil {
			s.log.Error("speech command failed", "command", s.name, "error", err)
		}
	}()
	return nil
}

// Busy implements tts.Synthesizer.
func (s *Synthesizer) Busy() bool {
	return s.busy.Load()
}

// Stop implements tts.Synthesizer. It kills the running speech command, if
// any.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

// Close implements tts.Synthesizer.
func (s *Synthesizer) Close() error {
	s.Stop()
	s.wg.Wait()
	return nil
}
