package guard

import (
	"sync"
	"time"

	"rebalancer/internal/core"
	"rebalancer/internal/telemetry"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
)

// FailureBreaker trips after a run of consecutive execution failures and
// stays open for a cooloff period. While open, outcome records are ignored
// so that one bad burst does not extend the cooloff indefinitely; tripping
// resets the counter so each open period starts a fresh count.
type FailureBreaker struct {
	mu sync.Mutex

	name        string
	maxFailures int
	cooloff     time.Duration
	clock       core.Clock
	state       BreakerState
	consecutive int
	openedAt    time.Time
}

func NewFailureBreaker(name string, maxFailures int, cooloff time.Duration, clock core.Clock) *FailureBreaker {
	return &FailureBreaker{
		name:        name,
		maxFailures: maxFailures,
		cooloff:     cooloff,
		clock:       clock,
		state:       BreakerClosed,
	}
}

// RecordFailure counts one failed execution attempt. Ignored while open.
func (b *FailureBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open() {
		return
	}
	b.consecutive++
	if b.maxFailures > 0 && b.consecutive >= b.maxFailures {
		b.trip()
	}
}

// RecordSuccess resets the consecutive failure count. Ignored while open.
func (b *FailureBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open() {
		return
	}
	b.consecutive = 0
}

// Allow reports whether executions may proceed. An expired cooloff closes
// the breaker on the spot.
func (b *FailureBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.open()
}

// ConsecutiveFailures returns the current run length. Diagnostic only.
func (b *FailureBreaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}

// Reset closes the breaker and clears the count, regardless of cooloff.
func (b *FailureBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.consecutive = 0
	telemetry.GetGlobalMetrics().SetBreakerOpen(b.name, false)
}

// open evaluates state with lazy cooloff expiry. Caller holds mu.
func (b *FailureBreaker) open() bool {
	if b.state != BreakerOpen {
		return false
	}
	if b.cooloff > 0 && b.clock.Now().Sub(b.openedAt) >= b.cooloff {
		b.state = BreakerClosed
		b.consecutive = 0
		telemetry.GetGlobalMetrics().SetBreakerOpen(b.name, false)
		return false
	}
	return true
}

// trip opens the breaker and starts the cooloff. Caller holds mu.
func (b *FailureBreaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.clock.Now()
	b.consecutive = 0
	telemetry.GetGlobalMetrics().SetBreakerOpen(b.name, true)
}
