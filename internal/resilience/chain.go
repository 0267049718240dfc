package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [Chain] fails or sits
// behind an open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// chainEntry pairs a provider with its dedicated breaker.
type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain wraps a primary and zero or more fallback providers of the same
// type. Entries are tried in registration order; entries with an open
// breaker are skipped.
//
// Chain is safe for concurrent use once assembled; Add is not safe to call
// concurrently with Do.
type Chain[T any] struct {
	entries []chainEntry[T]
	cfg     BreakerConfig
	log     *slog.Logger
}

// NewChain creates a Chain with primary as the first entry. cfg seeds the
// per-entry breakers; cfg.Name is overridden per entry.
func NewChain[T any](primaryName string, primary T, cfg BreakerConfig) *Chain[T] {
	cfg = cfg.withDefaults()
	c := &Chain[T]{cfg: cfg, log: cfg.Logger}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback provider.
func (c *Chain[T]) Add(name string, value T) {
	cfg := c.cfg
	cfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Len returns the number of registered providers.
func (c *Chain[T]) Len() int {
	return len(c.entries)
}

// Names returns the registered provider names in order.
func (c *Chain[T]) Names() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.name
	}
	return out
}

// Do tries fn against each entry in order until one succeeds. Returns
// ErrAllFailed wrapped around the last error when none does.
func (c *Chain[T]) Do(fn func(T) error) error {
	_, err := DoResult(c, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// DoResult tries fn against each entry in the chain until one succeeds and
// returns its result. A package-level function because Go methods cannot
// introduce type parameters.
func DoResult[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.entries {
		entry := &c.entries[i]
		var result R
		err := entry.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			c.log.Debug("skipping provider, circuit open", "provider", entry.name)
		} else {
			c.log.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// each calls fn for every entry regardless of breaker state, used for
// fan-out operations like Stop and Close.
func (c *Chain[T]) each(fn func(T) error) error {
	var errs []error
	for i := range c.entries {
		if err := fn(c.entries[i].value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.entries[i].name, err))
		}
	}
	return errors.Join(errs...)
}
