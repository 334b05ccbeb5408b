// Package resilience protects calls to external services with a circuit breaker.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota
	// StateOpen rejects all calls until the reset timeout elapsed.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
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

// Config configures a [CircuitBreaker].
type Config struct {
	// Name is used within log messages.
	Name string
	// MaxFailures is the number of consecutive failures that open the breaker. Default: 5.
	MaxFailures int
	// ResetTimeout is the time the breaker stays open. Default: 30s.
	ResetTimeout time.Duration
	// HalfOpenProbes is the number of successful probes required to close the breaker. Default: 1.
	HalfOpenProbes int
	// IsFailure decides whether an error counts as failure. Default: every non-nil error.
	IsFailure func(error) bool
	// Now replaces the time source.
	Now func() time.Time
}

// CircuitBreaker implements the closed, open and half-open circuit breaker states.
// It is safe for concurrent use.
type CircuitBreaker struct {
	cfg Config

	mutex          sync.Mutex
	state          State
	failures       int
	openedAt       time.Time
	probes         int
	probeSuccesses int
}

// NewCircuitBreaker creates a [CircuitBreaker], applying defaults to zero config fields.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &CircuitBreaker{cfg: cfg}
}

// Execute calls fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.acquire()
	if err != nil {
		return err
	}

	err = fn()

	cb.release(probe, cb.cfg.IsFailure(err))

	return err
}

func (cb *CircuitBreaker) acquire() (bool, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}

		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeSuccesses = 0
		slog.Info("circuit breaker half-open", "name", cb.cfg.Name)
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenProbes {
			return false, ErrCircuitOpen
		}

		cb.probes++

		return true, nil
	}

	return false, nil
}

func (cb *CircuitBreaker) release(probe, failed bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if failed {
		cb.failures++

		if probe || cb.failures >= cb.cfg.MaxFailures {
			if cb.state != StateOpen {
				slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "consecutive_failures", cb.failures)
			}
			cb.state = StateOpen
			cb.openedAt = cb.cfg.Now()
		}

		return
	}

	cb.failures = 0

	if probe {
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.cfg.HalfOpenProbes {
			cb.state = StateClosed
			slog.Info("circuit breaker closed", "name", cb.cfg.Name)
		}
	}
}

// State returns the current state. An open breaker whose reset timeout
// elapsed reports [StateHalfOpen].
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}

	return cb.state
}

// Reset closes the breaker and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeSuccesses = 0
}
