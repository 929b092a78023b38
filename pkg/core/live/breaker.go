package live

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when the circuit is open and the cooldown
// has not elapsed.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerState is the breaker's current state.
type BreakerState int

const (
	// BreakerClosed allows calls through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen fails fast until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen allows one trial call after the cooldown.
	BreakerHalfOpen
)

// String returns a human-readable state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker guards the auxiliary-model calls. It opens after
// failureThreshold consecutive failures, fails fast for the cooldown,
// then allows a single half-open trial; a success closes it again.
type Breaker struct {
	failureThreshold int
	cooldown         time.Duration
	callTimeout      time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	trialing    bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(failureThreshold int, cooldown, callTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		callTimeout:      callTimeout,
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call runs fn under the breaker with the per-call timeout applied.
// Returns ErrBreakerOpen without invoking fn when the circuit is open.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	callCtx := ctx
	if b.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.callTimeout)
		defer cancel()
	}

	err := fn(callCtx)
	b.record(err)
	return err
}

// allow checks whether a call may proceed, moving open -> half-open when
// the cooldown has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if time.Since(b.lastFailure) < b.cooldown {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.trialing = true
		return nil
	case BreakerHalfOpen:
		if b.trialing {
			return ErrBreakerOpen
		}
		b.trialing = true
		return nil
	}
	return nil
}

// record updates breaker state from a call result.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		b.trialing = false
		return
	}

	b.failures++
	b.lastFailure = time.Now()
	b.trialing = false

	if b.state == BreakerHalfOpen || b.failures >= b.failureThreshold {
		b.state = BreakerOpen
	}
}
