package provider

import (
	"errors"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // calls pass through
	StateOpen     State = 1 // calls rejected until the reset timeout elapses
	StateHalfOpen State = 2 // one probe call allowed through
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

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("provider circuit breaker is open")

// CircuitBreaker guards the quote/trigger HTTP calls so a provider outage
// does not turn every 10s poll tick into a slow timeout. It counts
// consecutive failures; at maxFailures it opens and rejects calls until
// resetTimeout has elapsed, then lets a single call through. That call's
// outcome decides between closing again and reopening.
//
// Rejected calls surface to the monitor as ordinary transient check errors,
// so each order's poll schedule is unaffected.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	state       State
	consecFails int
	openedAt    time.Time

	// OnStateChange, when set, is invoked on every transition while the
	// breaker lock is held. Keep it fast.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker that trips after maxFailures
// consecutive failures and retries resetTimeout after opening.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Execute runs fn unless the breaker is open, and feeds fn's outcome back
// into the failure count. Returns ErrCircuitOpen when the call is rejected.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err)
	return err
}

// CurrentState returns the breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow decides whether a call may proceed, moving an open breaker to
// half-open once the reset timeout has elapsed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		if time.Since(cb.openedAt) <= cb.resetTimeout {
			return false
		}
		cb.transition(StateHalfOpen)
	}
	return true
}

// record applies a call outcome to the breaker.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		cb.consecFails = 0
		return
	}

	cb.consecFails++
	cb.openedAt = time.Now()
	if cb.state == StateHalfOpen || cb.consecFails >= cb.maxFailures {
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.consecFails = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
