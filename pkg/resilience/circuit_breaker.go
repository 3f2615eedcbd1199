package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// BreakerState is the admission state of a circuit breaker.
type BreakerState int

const (
	// StateClosed admits every call.
	StateClosed BreakerState = iota
	// StateOpen rejects calls without invoking the dependency.
	StateOpen
	// StateHalfOpen admits a bounded number of probe calls.
	StateHalfOpen
)

func (s BreakerState) String() string {
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

// BreakerConfig tunes a circuit breaker. Zero values fall back to
// defaults suited to the audit publish path.
type BreakerConfig struct {
	Name string

	// MaxFailures consecutive failures trip the breaker open.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// MaxProbes bounds concurrent half-open calls.
	MaxProbes int

	// SuccessThreshold consecutive probe successes close the breaker.
	SuccessThreshold int
}

// CircuitBreaker shields the request path from a misbehaving side
// dependency. The engine treats audit delivery as best-effort; the
// breaker keeps a dead broker from adding per-request latency while it
// is down.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	probes      int
	openedUntil time.Time
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// ErrBreakerOpen is returned when a call is rejected without being
// attempted.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Execute runs fn under breaker admission. A rejection wraps
// ErrBreakerOpen; any other error is fn's own.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.settle(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Now().Before(cb.openedUntil) {
			return fmt.Errorf("%s: %w", cb.cfg.Name, ErrBreakerOpen)
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.successes = 0
		fallthrough
	case StateHalfOpen:
		if cb.probes >= cb.cfg.MaxProbes {
			return fmt.Errorf("%s: %w", cb.cfg.Name, ErrBreakerOpen)
		}
		cb.probes++
		return nil
	default:
		return fmt.Errorf("%s: %w", cb.cfg.Name, ErrBreakerOpen)
	}
}

func (cb *CircuitBreaker) settle(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probes--
	}

	if err != nil {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.trip()
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.successes = 0
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedUntil = time.Now().Add(cb.cfg.ResetTimeout)
	cb.successes = 0
}

// State reports the current admission state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
