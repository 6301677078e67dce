package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebalancer/internal/mock"
)

func TestRateLimiterEnforcesMinimumGap(t *testing.T) {
	clk := mock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	l := NewExecutionRateLimiter(10*time.Minute, 100, clk)

	require.True(t, l.Allow())
	l.NotifyExecuted()
	assert.False(t, l.Allow())

	clk.Advance(9 * time.Minute)
	assert.False(t, l.Allow())

	clk.Advance(time.Minute)
	assert.True(t, l.Allow())
}

func TestRateLimiterEnforcesHourlyCap(t *testing.T) {
	clk := mock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	l := NewExecutionRateLimiter(time.Minute, 3, clk)

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(), "execution %d", i)
		l.NotifyExecuted()
		clk.Advance(5 * time.Minute)
	}
	assert.False(t, l.Allow())
	assert.Equal(t, 0, l.Remaining())

	// First slot falls out of the rolling hour.
	clk.Advance(46 * time.Minute)
	assert.True(t, l.Allow())
}

func TestRateLimiterAllowWithoutExecutionBurnsNothing(t *testing.T) {
	clk := mock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	l := NewExecutionRateLimiter(10*time.Minute, 2, clk)

	// Repeated checks without an execution never consume the budget.
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow())
	}
	assert.Equal(t, 2, l.Remaining())
}

func TestRateLimiterWindowIsRolling(t *testing.T) {
	clk := mock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	l := NewExecutionRateLimiter(0, 2, clk)

	require.True(t, l.Allow())
	l.NotifyExecuted()
	clk.Advance(30 * time.Minute)
	require.True(t, l.Allow())
	l.NotifyExecuted()
	assert.False(t, l.Allow())

	clk.Advance(31 * time.Minute)
	assert.Equal(t, 1, l.Remaining())
	assert.True(t, l.Allow())
}
