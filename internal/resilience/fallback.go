package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] failed or
// had an open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// entry pairs a provider value with its dedicated breaker.
type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// FallbackGroup holds a primary and zero or more fallback instances of the
// same provider type, each behind its own [Breaker]. Entries are tried in
// registration order; open breakers are skipped.
//
// Registration is not synchronized: add all fallbacks before first use.
type FallbackGroup[T any] struct {
	entries  []entry[T]
	settings Settings
}

// NewFallbackGroup creates a group with primary as the first entry. The
// settings seed every entry's breaker; the per-entry name overrides
// Settings.Name.
func NewFallbackGroup[T any](primary T, primaryName string, settings Settings) *FallbackGroup[T] {
	g := &FallbackGroup[T]{settings: settings}
	g.add(primaryName, primary)
	return g
}

// AddFallback appends a fallback provider, tried after all earlier entries.
func (g *FallbackGroup[T]) AddFallback(name string, fallback T) {
	g.add(name, fallback)
}

func (g *FallbackGroup[T]) add(name string, value T) {
	s := g.settings
	s.Name = name
	g.entries = append(g.entries, entry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(s),
	})
}

// Execute tries fn against each entry until one succeeds, skipping entries
// whose breaker is open. When every entry fails it returns [ErrAllFailed]
// wrapping the last error.
//
// isBenign, when non-nil, marks errors that count as a successful call for
// breaker accounting AND stop the failover chain — e.g. "no speech in the
// audio" is an answer, not a provider fault.
func (g *FallbackGroup[T]) Execute(fn func(T) error, isBenign func(error) bool) error {
	var lastErr error
	for i := range g.entries {
		e := &g.entries[i]
		var benign error
		err := e.breaker.Execute(func() error {
			err := fn(e.value)
			if err != nil && isBenign != nil && isBenign(err) {
				benign = err
				return nil
			}
			return err
		})
		if benign != nil {
			return benign
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("provider skipped, circuit open", "provider", e.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", e.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// ExecuteWithResult is [FallbackGroup.Execute] for functions that return a
// value. It is a package-level function because Go methods cannot carry
// their own type parameters.
func ExecuteWithResult[T, R any](g *FallbackGroup[T], fn func(T) (R, error), isBenign func(error) bool) (R, error) {
	var (
		result R
		outErr error
	)
	outErr = g.Execute(func(p T) error {
		var err error
		result, err = fn(p)
		return err
	}, isBenign)
	if outErr != nil && (isBenign == nil || !isBenign(outErr)) {
		var zero R
		return zero, outErr
	}
	return result, outErr
}
