package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call while the circuit is open or the half-open probe slot is taken.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int // consecutive failures that open the circuit
	SuccessThreshold int // half-open successes that close it again
	Timeout          time.Duration
	// HalfOpenProbes caps concurrent calls while half-open. A forecast fan-out
	// would otherwise send every location through at once.
	HalfOpenProbes int
	OnStateChange  func(from, to State)
}

// CircuitBreaker protects upstream calls by opening after repeated failures
// and allowing a limited number of probe requests in half-open state.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	probesInFlight  int
	lastFailureTime time.Time
	cfg             Config
	now             func() time.Time
}

// New creates a new CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &CircuitBreaker{state: StateClosed, cfg: cfg, now: time.Now}
}

// Call runs fn when the circuit allows it. A caller whose ctx is already done gets
// ctx.Err() without touching the counters, and a failure caused by the caller's own
// cancellation is not held against the upstream.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	probe, err := cb.admit()
	if err != nil {
		return err
	}

	callErr := fn()

	var transitions []State
	cb.mu.Lock()
	if probe {
		cb.probesInFlight--
	}
	from := cb.state
	switch {
	case callErr != nil && errors.Is(callErr, context.Canceled) && ctx.Err() != nil:
		// caller went away; no verdict on the upstream
	case callErr != nil:
		cb.failureCount++
		cb.successCount = 0
		cb.lastFailureTime = cb.now()
		if cb.state == StateHalfOpen || cb.failureCount >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.failureCount = 0
		}
	default:
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.successCount++
			if cb.successCount >= cb.cfg.SuccessThreshold {
				cb.state = StateClosed
				cb.successCount = 0
			}
		}
	}
	if cb.state != from {
		transitions = append(transitions, from, cb.state)
	}
	cb.mu.Unlock()

	cb.notify(transitions)
	return callErr
}

// admit decides whether a call may proceed and whether it occupies a probe slot.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	var transitions []State
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailureTime) < cb.cfg.Timeout {
			cb.mu.Unlock()
			return false, ErrOpen
		}
		transitions = append(transitions, StateOpen, StateHalfOpen)
		cb.state = StateHalfOpen
		cb.successCount = 0
		cb.probesInFlight = 0
	}
	if cb.state == StateHalfOpen {
		if cb.probesInFlight >= cb.cfg.HalfOpenProbes {
			cb.mu.Unlock()
			cb.notify(transitions)
			return false, ErrOpen
		}
		cb.probesInFlight++
		probe = true
	}
	cb.mu.Unlock()

	cb.notify(transitions)
	return probe, nil
}

func (cb *CircuitBreaker) notify(transitions []State) {
	if cb.cfg.OnStateChange == nil || len(transitions) < 2 {
		return
	}
	cb.cfg.OnStateChange(transitions[0], transitions[1])
}

// State returns the current state (for metrics).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
