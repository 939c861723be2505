package stepexec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitBreakerState is the state of a single agent's circuit breaker.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Name                string
	MaxHalfOpenRequests uint32
	Interval            time.Duration // statistical window while closed
	OpenTimeout         time.Duration // time to wait before probing half-open
	FailureThreshold    uint32        // consecutive failures that trip the breaker
}

type counts struct {
	requests             uint32
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
}

// CircuitBreaker gates invocations to a single agent, generation-windowed so
// that results from a superseded window never leak into the next one's
// counts. One instance is kept per agent_id by the Step Executor.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu         sync.Mutex
	state      CircuitBreakerState
	generation uint64
	counts     counts
	expiry     time.Time

	logger *zap.Logger
}

// NewCircuitBreaker builds a CircuitBreaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.MaxHalfOpenRequests == 0 {
		cfg.MaxHalfOpenRequests = 1
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		cfg:    cfg,
		state:  StateClosed,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("agent", cfg.Name)),
	}
}

// ErrOpen is returned by Execute when the breaker is currently open.
type ErrOpen struct{ Name string }

func (e *ErrOpen) Error() string { return fmt.Sprintf("circuit breaker %q is open", e.Name) }

// Execute runs fn if the breaker currently admits calls, and records the
// outcome against the breaker's window.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	generation, err := cb.beforeCall()
	if err != nil {
		return nil, err
	}

	result, callErr := fn(ctx)

	cb.afterCall(generation, callErr)
	return result, callErr
}

func (cb *CircuitBreaker) beforeCall() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)

	switch state {
	case StateOpen:
		return generation, &ErrOpen{Name: cb.cfg.Name}
	case StateHalfOpen:
		if cb.counts.requests >= cb.cfg.MaxHalfOpenRequests {
			return generation, &ErrOpen{Name: cb.cfg.Name}
		}
	}
	return generation, nil
}

func (cb *CircuitBreaker) afterCall(before uint64, callErr error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)
	if generation != before {
		return // result belongs to a superseded window
	}

	cb.counts.requests++
	if callErr == nil {
		cb.counts.consecutiveSuccesses++
		cb.counts.consecutiveFailures = 0
	} else {
		cb.counts.consecutiveFailures++
		cb.counts.consecutiveSuccesses = 0
	}

	switch state {
	case StateClosed:
		if cb.counts.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		if cb.counts.consecutiveFailures > 0 {
			cb.setState(StateOpen, now)
		} else if cb.counts.consecutiveSuccesses >= cb.cfg.MaxHalfOpenRequests {
			cb.setState(StateClosed, now)
		}
	}
}

func (cb *CircuitBreaker) currentState(now time.Time) (CircuitBreakerState, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.toNewGeneration(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) setState(state CircuitBreakerState, now time.Time) {
	if cb.state == state {
		return
	}
	prev := cb.state
	cb.state = state
	cb.toNewGeneration(now)

	if state == StateOpen {
		cb.expiry = now.Add(cb.cfg.OpenTimeout)
	} else {
		cb.expiry = time.Time{}
	}

	cb.logger.Info("circuit breaker state changed", zap.String("from", prev.String()), zap.String("to", state.String()))
}

func (cb *CircuitBreaker) toNewGeneration(now time.Time) {
	cb.generation++
	cb.counts = counts{}
	if cb.cfg.Interval > 0 {
		cb.expiry = now.Add(cb.cfg.Interval)
	}
}

// State reports the breaker's current state, mostly for tests/metrics.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	state, _ := cb.currentState(time.Now())
	return state
}
