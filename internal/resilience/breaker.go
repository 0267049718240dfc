// Package resilience provides circuit breaking and provider failover for the
// assistant's speech and language backends.
//
// The central type is [Breaker], a three-state circuit breaker
// (closed → open → half-open). [Chain] composes multiple providers of the
// same type with per-entry breakers so a failing primary is bypassed in
// favour of healthy fallbacks. Typed wrappers ([FallbackResponder],
// [FallbackTranscriber], [FallbackSynthesizer]) adapt chains to the provider
// interfaces the pipeline consumes.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// reset timeout has not yet elapsed.
var ErrOpen = errors.New("resilience: circuit open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// Closed forwards all calls.
	Closed BreakerState = iota

	// Open rejects calls with ErrOpen until the reset timeout elapses.
	Open

	// HalfOpen lets a limited number of probe calls through; success
	// closes the breaker, failure re-opens it.
	HalfOpen
)

// String implements fmt.Stringer.
func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is the consecutive-failure count that opens the
	// breaker. Default 3: a voice turn cannot afford long retry storms.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing
	// again. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state. Default 2.
	HalfOpenMax int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Breaker implements the three-state circuit breaker pattern.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewBreaker creates a Breaker; zero-value config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Do runs fn if the breaker allows it. In the open state it returns ErrOpen
// without calling fn.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.allow()
	if err != nil {
		return err
	}

	err = fn()
	b.observe(err, probe)
	return err
}

// allow decides whether a call may proceed and reports whether it counts as
// a half-open probe.
func (b *Breaker) allow() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.lastFailure) < b.cfg.ResetTimeout {
			return false, ErrOpen
		}
		b.state = HalfOpen
		b.probes = 0
		b.probeFails = 0
		b.cfg.Logger.Info("circuit half-open", "name", b.cfg.Name)
		fallthrough
	case HalfOpen:
		if b.probes >= b.cfg.HalfOpenMax {
			return false, ErrOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

// observe updates breaker state after a call.
func (b *Breaker) observe(callErr error, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if callErr != nil {
		b.lastFailure = time.Now()
		if probe {
			// Any probe failure re-opens immediately.
			b.probeFails++
			b.state = Open
			b.failures = b.cfg.MaxFailures
			b.cfg.Logger.Warn("circuit re-opened", "name", b.cfg.Name)
			return
		}
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.state = Open
			b.cfg.Logger.Warn("circuit opened",
				"name", b.cfg.Name, "consecutive_failures", b.failures)
		}
		return
	}

	if probe {
		if b.probes-b.probeFails >= b.cfg.HalfOpenMax {
			b.state = Closed
			b.failures = 0
			b.cfg.Logger.Info("circuit closed", "name", b.cfg.Name)
		}
		return
	}
	b.failures = 0
}

// State returns the breaker's current state. An open breaker whose reset
// timeout has elapsed reports HalfOpen; the transition itself happens on the
// next Do call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open && time.Since(b.lastFailure) >= b.cfg.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker back to Closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
}
