package guard

import (
	"sync"
	"time"

	"rebalancer/internal/core"
)

// ExecutionRateLimiter bounds how often rebalance executions may run: a
// minimum gap between consecutive executions plus a cap on executions per
// rolling hour. It is deliberately separate from any venue API rate limit;
// this throttles our own trading decisions, not HTTP requests.
//
// Allow is a pure check so a cycle that passes the gate but ends up
// trading nothing does not burn a slot; callers record actual executions
// with NotifyExecuted.
type ExecutionRateLimiter struct {
	mu sync.Mutex

	minGap   time.Duration
	maxPerHr int
	clock    core.Clock

	lastExec time.Time
	window   []time.Time
}

const rateWindow = time.Hour

// NewExecutionRateLimiter creates a limiter allowing at most maxPerHour
// executions per rolling hour with at least minGap between consecutive ones.
func NewExecutionRateLimiter(minGap time.Duration, maxPerHour int, clock core.Clock) *ExecutionRateLimiter {
	return &ExecutionRateLimiter{
		minGap:   minGap,
		maxPerHr: maxPerHour,
		clock:    clock,
	}
}

// Allow reports whether an execution may proceed now.
func (l *ExecutionRateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if !l.lastExec.IsZero() && now.Sub(l.lastExec) < l.minGap {
		return false
	}

	l.prune(now)
	return len(l.window) < l.maxPerHr
}

// NotifyExecuted records one execution against the gap and the rolling
// window.
func (l *ExecutionRateLimiter) NotifyExecuted() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)
	l.lastExec = now
	l.window = append(l.window, now)
}

// Remaining returns how many executions are left in the current rolling
// hour. Diagnostic only; Allow is the authority.
func (l *ExecutionRateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.clock.Now())
	if n := l.maxPerHr - len(l.window); n > 0 {
		return n
	}
	return 0
}

// prune drops window entries older than the rolling hour. Caller holds mu.
func (l *ExecutionRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(l.window) && !l.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.window = append(l.window[:0], l.window[i:]...)
	}
}
