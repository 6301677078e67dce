// Package mock provides in-memory test doubles for the venue, market data
// and clock interfaces.
package mock

import (
	"sync"
	"time"
)

// Clock is a manually advanced clock. Sleep advances it instead of
// blocking, so retry backoffs are visible to assertions and free to run.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(d time.Duration) {
	c.Advance(d)
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
