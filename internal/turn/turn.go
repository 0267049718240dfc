// Package turn coordinates one interaction turn: it takes an extracted
// command, generates a reply, runs any detected action, and hands the result
// to the synthesizer. The coordinator also owns the conversation context and
// decides when the assistant shuts down.
package turn

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vesperd/vesper/internal/action"
	"github.com/vesperd/vesper/internal/observe"
	"github.com/vesperd/vesper/internal/transcript/wakeword"
	"github.com/vesperd/vesper/pkg/provider/llm"
	"github.com/vesperd/vesper/pkg/provider/tts"
)

// State is the coordinator's current phase within a turn.
type State int32

const (
	// Idle means no turn is in progress and the pipeline is not capturing.
	Idle State = iota
	// Listening means the pipeline is capturing and awaiting a wake word.
	Listening
	// Generating means a reply is being generated.
	Generating
	// ActingOnResult means a detected action is executing.
	ActingOnResult
	// Speaking means the reply is being handed to the synthesizer.
	Speaking
	// ShuttingDown means an exit was requested and shutdown is scheduled.
	ShuttingDown
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Generating:
		return "generating"
	case ActingOnResult:
		return "acting"
	case Speaking:
		return "speaking"
	case ShuttingDown:
		return "shutting_down"
	}
	return "unknown"
}

// Acknowledgement is spoken when the wake word arrives with no command.
const Acknowledgement = "Yes?"

// apology is spoken when reply generation fails.
const apology = "Sorry, I ran into a problem handling that request."

const (
	// exitShutdownDelay is the grace period between the farewell and
	// shutdown when the user speaks an exit phrase directly.
	exitShutdownDelay = 2 * time.Second

	// actionShutdownDelay is the shorter grace period when the exit action
	// is detected in a generated reply.
	actionShutdownDelay = time.Second

	// speakPollInterval is how often the coordinator re-checks a busy
	// synthesizer before accepting a command.
	speakPollInterval = 100 * time.Millisecond

	// defaultSpeakWait bounds how long a command waits for the synthesizer
	// to go idle before being dropped.
	defaultSpeakWait = 15 * time.Second
)

// Lifecycle schedules application shutdown. A later call supersedes an
// earlier pending one.
type Lifecycle interface {
	ScheduleShutdown(delay time.Duration)
}

// Recorder persists completed exchanges. Append failures are logged, never
// surfaced to the turn.
type Recorder interface {
	Append(ctx context.Context, command, reply string) error
}

// Option is a functional option for Coordinator.
type Option func(*Coordinator)

// WithDispatcher replaces the default action dispatcher.
func WithDispatcher(d *action.Dispatcher) Option {
	return func(c *Coordinator) {
		c.dispatcher = d
	}
}

// WithRecorder enables exchange persistence.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// WithLogger sets the coordinator's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithSpeakWait bounds how long a command waits for a busy synthesizer.
func WithSpeakWait(d time.Duration) Option {
	return func(c *Coordinator) {
		c.speakWait = d
	}
}

// Coordinator runs interaction turns. Handle is intended to be called from a
// single goroutine (the pipeline); State and the conversation context are
// nonetheless safe to read concurrently.
type Coordinator struct {
	responder  llm.Responder
	synth      tts.Synthesizer
	dispatcher *action.Dispatcher
	lifecycle  Lifecycle
	recorder   Recorder
	log        *slog.Logger
	metrics    *observe.Metrics
	speakWait  time.Duration

	state atomic.Int32
	convo conversation
}

// NewCoordinator creates a Coordinator. responder, synth, and lifecycle must
// be non-nil.
func NewCoordinator(responder llm.Responder, synth tts.Synthesizer, lifecycle Lifecycle, opts ...Option) *Coordinator {
	c := &Coordinator{
		responder: responder,
		synth:     synth,
		lifecycle: lifecycle,
		log:       slog.Default(),
		speakWait: defaultSpeakWait,
	}
	for _, o := range opts {
		o(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = action.NewDispatcher(action.WithLogger(c.log))
	}
	return c
}

// State returns the coordinator's current phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Context returns the retained conversation context.
func (c *Coordinator) Context() string {
	return c.convo.String()
}

// Handle runs one turn for the given extraction. Extractions with
// OutcomeNone are ignored.
func (c *Coordinator) Handle(ctx context.Context, ex wakeword.Extraction) {
	switch ex.Outcome {
	case wakeword.OutcomeNone:
		return
	case wakeword.OutcomeAcknowledge:
		c.acknowledge()
		return
	case wakeword.OutcomeExit:
		c.shutdown(action.Farewell, exitShutdownDelay)
		return
	}

	ctx, span := observe.StartSpan(ctx, "turn")
	start := time.Now()
	status := "ok"
	defer func() {
		span.End()
		if c.metrics != nil {
			c.metrics.RecordTurn(ctx, status, time.Since(start).Seconds())
		}
		// Shutdown sticks; everything else returns to idle.
		if c.State() != ShuttingDown {
			c.state.Store(int32(Idle))
		}
	}()

	// A command is accepted only once the current utterance has finished:
	// generating while the synthesizer is busy would have the reply ready to
	// talk over it.
	if !c.waitForSynth() {
		c.log.Warn("synthesizer busy past deadline, dropping command", "command", ex.Command)
		status = "busy"
		return
	}

	c.state.Store(int32(Generating))
	c.log.Info("handling command", "command", ex.Command, "trace_id", observe.CorrelationID(ctx))

	reply, err := c.generate(ctx, ex.Command)
	if err != nil {
		c.log.Error("reply generation failed", "error", err)
		if c.metrics != nil {
			c.metrics.RecordProviderError(ctx, "llm", "completion")
		}
		status = "error"
		c.speak(apology)
		return
	}

	if act, ok := c.dispatcher.Detect(reply); ok {
		c.state.Store(int32(ActingOnResult))
		if result := c.dispatcher.Execute(ctx, act); result != "" {
			reply = result
		}
		if act == action.ExitSystem {
			c.convo.Append(ex.Command, reply)
			c.record(ex.Command, reply)
			c.shutdown(reply, actionShutdownDelay)
			return
		}
	}

	c.convo.Append(ex.Command, reply)
	c.record(ex.Command, reply)

	c.state.Store(int32(Speaking))
	c.speak(reply)
}

// generate calls the responder with the retained context, recording latency.
func (c *Coordinator) generate(ctx context.Context, command string) (string, error) {
	start := time.Now()
	reply, err := c.responder.Reply(ctx, command, c.convo.String())
	if c.metrics != nil {
		c.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	return reply, err
}

// acknowledge speaks the bare-wake-word prompt. A busy synthesizer means the
// assistant is already talking, so the prompt is simply dropped.
func (c *Coordinator) acknowledge() {
	if err := c.synth.Speak(Acknowledgement); err != nil && !errors.Is(err, tts.ErrBusy) {
		c.log.Error("failed to speak acknowledgement", "error", err)
	}
}

// speak hands the reply to the synthesizer. The busy gate ran before the
// command was accepted, so a rejection here is unexpected and worth logging.
func (c *Coordinator) speak(text string) {
	if err := c.synth.Speak(text); err != nil && !errors.Is(err, tts.ErrBusy) {
		c.log.Error("failed to speak reply", "error", err)
		if c.metrics != nil {
			c.metrics.RecordProviderError(context.Background(), "tts", "speak")
		}
	}
}

// waitForSynth polls until the synthesizer is idle or the wait budget is
// spent.
func (c *Coordinator) waitForSynth() bool {
	if !c.synth.Busy() {
		return true
	}
	ticker := time.NewTicker(speakPollInterval)
	defer ticker.Stop()
	deadline := time.Now().Add(c.speakWait)
	for range ticker.C {
		if !c.synth.Busy() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
	return false
}

// shutdown speaks the farewell and schedules application shutdown. It never
// waits on a busy synthesizer: the shutdown must fire even mid-utterance, so
// the current one is interrupted instead.
func (c *Coordinator) shutdown(farewell string, delay time.Duration) {
	c.state.Store(int32(ShuttingDown))
	c.log.Info("exit requested", "delay", delay)

	if c.synth.Busy() {
		c.synth.Stop()
		// Interruption is asynchronous; give the synthesizer a moment to
		// go idle so the farewell is not dropped.
		deadline := time.Now().Add(time.Second)
		for c.synth.Busy() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}
	if err := c.synth.Speak(farewell); err != nil {
		c.log.Error("failed to speak farewell", "error", err)
	}
	c.lifecycle.ScheduleShutdown(delay)
}

// record persists the exchange asynchronously when a recorder is configured.
func (c *Coordinator) record(command, reply string) {
	if c.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.recorder.Append(ctx, command, reply); err != nil {
			c.log.Error("failed to record exchange", "error", err)
		}
	}()
}
