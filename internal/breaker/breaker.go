// Package breaker implements a consecutive-failure circuit breaker used to
// stop calling a sink that keeps failing.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// State is the position of the breaker.
type State string

const (
	// StateClosed lets every call through.
	StateClosed State = "closed"
	// StateOpen rejects calls until the cool-down elapses.
	StateOpen State = "open"
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen State = "half-open"
)

// Config defines the breaker thresholds.
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// HalfOpenProbes is the number of successful probes that close it again.
	HalfOpenProbes int
}

// DefaultConfig returns the thresholds used for event delivery.
func DefaultConfig() Config {
	return Config{MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenProbes: 1}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	mu     sync.Mutex
	config Config
	now    func() time.Time

	state     State
	failures  int
	successes int
	probes    int
	openUntil time.Time
	changed   time.Time
}

// New returns a closed breaker. Non-positive fields fall back to DefaultConfig.
func New(config Config) *Breaker {
	def := DefaultConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = def.MaxFailures
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.HalfOpenProbes <= 0 {
		config.HalfOpenProbes = def.HalfOpenProbes
	}
	return &Breaker{config: config, now: time.Now, state: StateClosed, changed: time.Now()}
}

// WithClock replaces the time source. It is meant for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	b.changed = now()
	return b
}

// Do runs fn unless the circuit is open and records its outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		now := b.now()
		if now.Before(b.openUntil) {
			return ErrOpen
		}
		b.transitionLocked(StateHalfOpen, now)
		b.probes++
		return nil
	case StateHalfOpen:
		if b.probes >= b.config.HalfOpenProbes {
			return ErrOpen
		}
		b.probes++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if err != nil {
		b.failures++
		b.successes = 0
		if b.state == StateHalfOpen || b.failures >= b.config.MaxFailures {
			b.transitionLocked(StateOpen, now)
		}
		return
	}
	b.failures = 0
	b.successes++
	if b.state == StateHalfOpen {
		b.probes--
		if b.successes >= b.config.HalfOpenProbes {
			b.transitionLocked(StateClosed, now)
		}
	}
}

func (b *Breaker) transitionLocked(state State, now time.Time) {
	if b.state == state {
		return
	}
	b.state = state
	b.changed = now
	b.failures = 0
	b.successes = 0
	b.probes = 0
	if state == StateOpen {
		b.openUntil = now.Add(b.config.Timeout)
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a point-in-time snapshot for diagnostics.
type Stats struct {
	State           string `json:"state"`
	Failures        int    `json:"consecutive_failures"`
	LastStateChange string `json:"last_state_change"`
	OpenUntil       string `json:"open_until,omitempty"`
}

// Stats returns the current snapshot.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{
		State:           string(b.state),
		Failures:        b.failures,
		LastStateChange: b.changed.Format(time.RFC3339),
	}
	if b.state == StateOpen {
		s.OpenUntil = b.openUntil.Format(time.RFC3339)
	}
	return s
}
