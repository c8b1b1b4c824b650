package reliability

import (
	"errors"
	"sync"
	"time"
)

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
	Now          func() time.Time
	// IsFailure decides whether an error counts against the breaker. Errors
	// that prove the remote is healthy (a business rejection, say) should
	// return false. Nil counts every error.
	IsFailure func(error) bool
}

// BreakerState is the externally visible breaker position.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker rejects calls after repeated failures until a reset
// timeout elapses, then admits a single trial call.
type CircuitBreaker struct {
	mu         sync.Mutex
	maxFails   int
	resetAfter time.Duration
	now        func() time.Time
	isFailure  func(error) bool

	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool
}

// NewCircuitBreaker constructs a breaker. Zero values fall back to one
// failure and a two second reset.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	b := &CircuitBreaker{
		maxFails:   max(cfg.MaxFailures, 1),
		resetAfter: cfg.ResetTimeout,
		now:        cfg.Now,
		isFailure:  cfg.IsFailure,
	}
	if b.resetAfter <= 0 {
		b.resetAfter = 2 * time.Second
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.isFailure == nil {
		b.isFailure = func(err error) bool { return err != nil }
	}
	return b
}

// State reports the breaker position without changing it.
func (b *CircuitBreaker) State() BreakerState {
	if b == nil {
		return BreakerClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// errPanicked stands in for the result of a call that panicked.
var errPanicked = errors.New("call panicked")

// Execute runs fn unless the breaker is open. A panic in fn counts as a
// failure and is re-raised.
func (b *CircuitBreaker) Execute(fn func() error) (err error) {
	if b == nil {
		return fn()
	}

	now := b.now()
	if !b.admit(now) {
		return ErrCircuitOpen
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(now, errPanicked)
			panic(r)
		}
		b.record(now, err)
	}()
	return fn()
}

func (b *CircuitBreaker) admit(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if now.Sub(b.openedAt) < b.resetAfter {
			return false
		}
		b.state = BreakerHalfOpen
	case BreakerHalfOpen:
		if b.trial {
			return false
		}
	}
	if b.state == BreakerHalfOpen {
		b.trial = true
	}
	return true
}

func (b *CircuitBreaker) record(now time.Time, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	halfOpen := b.state == BreakerHalfOpen
	b.trial = false

	if err == nil || !b.isFailure(err) {
		b.state = BreakerClosed
		b.failures = 0
		return
	}
	if halfOpen {
		b.state = BreakerOpen
		b.openedAt = now
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.maxFails {
		b.state = BreakerOpen
		b.openedAt = now
	}
}
