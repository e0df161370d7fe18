// Package resilience provides circuit breaking and provider failover for the
// speech and language backends.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open)
// that stops a struggling upstream from dragging every turn into its timeout.
// [FallbackGroup] composes multiple instances of a provider type with
// per-entry breakers, so a tripped primary is bypassed in favour of healthy
// fallbacks; [TranscriberFallback], [ResponderFallback], and
// [SynthesizerFallback] apply it to the pipeline's provider interfaces.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Execute] when the breaker is open and the
// cool-down has not yet elapsed.
var ErrOpen = errors.New("resilience: circuit open")

// State is a breaker's operating mode.
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects every call with [ErrOpen] until the cool-down elapses.
	Open

	// HalfOpen lets a bounded number of probe calls through. If they all
	// succeed the breaker closes; any failure re-opens it.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings tunes a [Breaker]. Zero fields take the documented defaults.
type Settings struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker.
	// Default: 5.
	MaxFailures int

	// CoolDown is how long the breaker stays open before probing.
	// Default: 30s.
	CoolDown time.Duration

	// ProbeBudget is the number of half-open probe calls. Default: 3.
	ProbeBudget int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name        string
	maxFailures int
	coolDown    time.Duration
	probeBudget int

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
	probeOK  int
}

// NewBreaker creates a closed [Breaker] from settings, filling in defaults
// for zero fields.
func NewBreaker(s Settings) *Breaker {
	if s.MaxFailures <= 0 {
		s.MaxFailures = 5
	}
	if s.CoolDown <= 0 {
		s.CoolDown = 30 * time.Second
	}
	if s.ProbeBudget <= 0 {
		s.ProbeBudget = 3
	}
	return &Breaker{
		name:        s.Name,
		maxFailures: s.MaxFailures,
		coolDown:    s.CoolDown,
		probeBudget: s.ProbeBudget,
	}
}

// Execute runs fn if the breaker permits it. While open it returns [ErrOpen]
// without invoking fn; in half-open a bounded number of probes pass through.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.coolDown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probes = 0
		b.probeOK = 0
		slog.Info("circuit half-open, probing", "breaker", b.name)

	case HalfOpen:
		if b.probes >= b.probeBudget {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == HalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.openedAt = time.Now()
	if probing {
		b.state = Open
		b.failures = b.maxFailures
		slog.Warn("circuit re-opened, probe failed", "breaker", b.name)
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.state = Open
		slog.Warn("circuit opened", "breaker", b.name, "failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		b.probeOK++
		if b.probeOK >= b.probeBudget {
			b.state = Closed
			b.failures = 0
			slog.Info("circuit closed, probes succeeded", "breaker", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's mode. An open breaker whose cool-down has
// elapsed reports [HalfOpen]; the actual transition happens on the next
// Execute.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openedAt) >= b.coolDown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [Closed] and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probes = 0
	b.probeOK = 0
}
