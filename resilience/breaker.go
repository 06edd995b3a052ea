// Package resilience protects shared dependencies with a circuit breaker
// and an adaptive, behavior-scored rate limiter. Neither is a security
// boundary: both degrade service gracefully instead of failing hard.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"relaychat/errors"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerSettings parametrizes one breaker instance. A single Breaker type
// serves every protected dependency; only the settings differ.
type BreakerSettings struct {
	Name             string
	FailureThreshold int           // consecutive failures tripping closed -> open
	SuccessThreshold int           // consecutive probe successes closing half-open
	OpenTimeout      time.Duration // how long open short-circuits before probing
	CallTimeout      time.Duration // per-call deadline enforced on fn

	// IsFailure classifies a non-nil error from fn. Return false for
	// business answers the dependency computed and returned (not-found,
	// already-exists): those prove the dependency is healthy. A nil
	// IsFailure counts every non-nil error.
	IsFailure func(error) bool
}

// Breaker is a failure-isolation state machine around calls to one
// dependency. Calls while open are short-circuited with ErrBreakerOpen so
// callers can fall back instead of blocking on a dependency that is down.
type Breaker struct {
	mu          sync.Mutex
	settings    BreakerSettings
	state       State
	failures    int
	successes   int
	nextAttempt time.Time
	log         *slog.Logger
	onOpen      func(name string)
	now         func() time.Time
}

func NewBreaker(settings BreakerSettings, log *slog.Logger) *Breaker {
	return &Breaker{
		settings: settings,
		state:    StateClosed,
		log:      log,
		now:      time.Now,
	}
}

// OnOpen registers a hook fired each time the breaker trips open.
func (b *Breaker) OnOpen(fn func(name string)) *Breaker {
	b.onOpen = fn
	return b
}

// State returns the current state. Intended for tests and metrics.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn under the breaker's per-call timeout and records the outcome.
// While open it returns ErrBreakerOpen without invoking fn at all.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return fmt.Errorf("%s: %w", b.settings.Name, errors.ErrBreakerOpen)
	}

	callCtx := ctx
	if b.settings.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.settings.CallTimeout)
		defer cancel()
	}

	// The deadline must hold even when fn never checks its context: a hung
	// store call is exactly what the breaker exists to contain. The buffered
	// channel lets an abandoned call finish in the background.
	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = callCtx.Err()
	}
	b.record(err)
	return err
}

// allow reports whether a call may proceed, moving open -> half-open once
// the open timeout has elapsed so a probe batch can test recovery.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().After(b.nextAttempt) {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isFailure(err) {
		switch b.state {
		case StateHalfOpen:
			// Any probe failure re-trips immediately.
			b.trip()
		case StateClosed:
			b.failures++
			if b.failures >= b.settings.FailureThreshold {
				b.trip()
			}
		}
		return
	}

	// Success, or an error the classifier calls a business answer: either
	// way the dependency responded.
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			b.transition(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) isFailure(err error) bool {
	if err == nil {
		return false
	}
	if b.settings.IsFailure == nil {
		return true
	}
	return b.settings.IsFailure(err)
}

func (b *Breaker) trip() {
	b.nextAttempt = b.now().Add(b.settings.OpenTimeout)
	b.transition(StateOpen)
	if b.onOpen != nil {
		b.onOpen(b.settings.Name)
	}
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.log.Warn("Circuit breaker state change",
		"name", b.settings.Name,
		"from", b.state.String(),
		"to", to.String())
	b.state = to
	b.failures = 0
	b.successes = 0
}
