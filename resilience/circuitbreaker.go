// Package resilience provides the primitives actors share uniformly:
// circuit breaker, retry, token-bucket and sliding-window rate limiters,
// saga compensation chains, and a message deduplicator.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

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

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Name          string
	MaxFailures   int           // failures before opening (default 5)
	ResetTimeout  time.Duration // time spent open before probing (default 60s)
	HalfOpenMax   int           // successes required to close from half-open (default 3)
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig returns the spec's defaults (§4.4).
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 60 * time.Second,
		HalfOpenMax:  3,
	}
}

// Status is the point-in-time snapshot returned by GetStatus.
type Status struct {
	Name             string
	State            State
	Failures         int
	SuccessCount     int
	HalfOpenAttempts int
	LastFailure      time.Time
	NextAttempt      time.Time
}

// CircuitBreaker implements the closed -> open -> half-open -> closed cycle
// described in spec §4.4 and exercised by the testable properties in §8.
type CircuitBreaker struct {
	mu           sync.RWMutex
	config       CircuitBreakerConfig
	state        State
	failures     int
	successes    int
	halfOpenReqs int
	lastFailure  time.Time
}

// NewCircuitBreaker creates a CircuitBreaker, filling unset config fields with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{config: cfg, state: StateClosed}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStatus returns a snapshot of the breaker's counters, per spec §4.4.
func (cb *CircuitBreaker) GetStatus() Status {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	st := Status{
		Name:             cb.config.Name,
		State:            cb.state,
		Failures:         cb.failures,
		SuccessCount:     cb.successes,
		HalfOpenAttempts: cb.halfOpenReqs,
		LastFailure:      cb.lastFailure,
	}
	if cb.state == StateOpen {
		st.NextAttempt = cb.lastFailure.Add(cb.config.ResetTimeout)
	}
	return st
}

// Execute runs fn under circuit-breaker protection. While open, fn is never
// invoked and ErrCircuitOpen is returned immediately.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.config.ResetTimeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenReqs = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenReqs >= cb.config.HalfOpenMax {
			return ErrTooManyRequests
		}
		cb.halfOpenReqs++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenMax {
			cb.setState(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setState(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenReqs = 0

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(old, newState)
	}
}
