// Package resilience provides the primitives that protect calls to
// unreliable external providers: a three-state circuit breaker, a TTL
// cache, a token budget counter, and a reliability wrapper combining
// rate limiting, retry and the breaker around a single call.
package resilience

import (
	"sync"
	"sync/atomic"
	"time"
)

// BreakerState is the circuit breaker's current state.
type BreakerState int32

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig holds breaker thresholds. Thresholds and timeout are
// configuration, not hardcoded.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive half-open successes before closing
	Timeout          time.Duration // open duration before probing half-open
}

// DefaultBreakerConfig returns conservative defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// Breaker is a three-state circuit breaker. One breaker protects one
// external dependency and lives for the process lifetime.
//
// The Open→HalfOpen transition is a single compare-and-swap so two callers
// observing an expired timeout cannot both flip the state.
type Breaker struct {
	cfg   BreakerConfig
	state atomic.Int32

	mu          sync.Mutex
	failures    int
	successes   int
	lastFailure time.Time

	now func() time.Time // injectable clock for tests
}

// NewBreaker creates a closed breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// State returns the current state without side effects.
func (b *Breaker) State() BreakerState {
	return BreakerState(b.state.Load())
}

// IsOpen reports whether calls must fail fast. When the open timeout has
// elapsed since the last failure, the check transitions the breaker to
// half-open (at most once) and returns false so a probe call may pass.
func (b *Breaker) IsOpen() bool {
	if BreakerState(b.state.Load()) != StateOpen {
		return false
	}

	b.mu.Lock()
	elapsed := b.now().Sub(b.lastFailure)
	b.mu.Unlock()

	if elapsed < b.cfg.Timeout {
		return true
	}

	// Single CAS: exactly one caller wins the Open→HalfOpen transition.
	if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
		b.mu.Lock()
		b.successes = 0
		b.mu.Unlock()
	}
	return false
}

// RecordFailure notes a failed call. Reaching the failure threshold in the
// closed state opens the breaker; any half-open failure reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	switch BreakerState(b.state.Load()) {
	case StateHalfOpen:
		b.failures = 0
		b.successes = 0
		b.state.Store(int32(StateOpen))
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state.Store(int32(StateOpen))
		}
	}
}

// RecordSuccess notes a successful call. In half-open, reaching the success
// threshold closes the breaker and resets all counters.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch BreakerState(b.state.Load()) {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.failures = 0
			b.successes = 0
			b.state.Store(int32(StateClosed))
		}
	case StateClosed:
		b.failures = 0
	}
}

// Counts returns the current failure and success counters.
func (b *Breaker) Counts() (failures, successes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures, b.successes
}
