package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebalancer/internal/core"
	"rebalancer/internal/mock"
)

func TestPriceFreshBoundaryIsInclusive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, PriceFresh(now.Add(-30*time.Second), now, 30*time.Second))
	assert.False(t, PriceFresh(now.Add(-30*time.Second-time.Nanosecond), now, 30*time.Second))
	assert.True(t, PriceFresh(now, now, 30*time.Second))
}

func TestWithinSlippage(t *testing.T) {
	assert.True(t, WithinSlippage(100.5, 100, 0.01))
	assert.True(t, WithinSlippage(101, 100, 0.01))
	assert.False(t, WithinSlippage(101.5, 100, 0.01))
	assert.True(t, WithinSlippage(99, 100, 0.01))
}

func TestWithinSlippageFailsClosedOnBadPrices(t *testing.T) {
	assert.False(t, WithinSlippage(0, 100, 0.5))
	assert.False(t, WithinSlippage(100, 0, 0.5))
	assert.False(t, WithinSlippage(-1, 100, 0.5))
	assert.False(t, WithinSlippage(100, -1, 0.5))
}

func TestRealizedVolRequiresMinimumHistory(t *testing.T) {
	short := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108}
	assert.Zero(t, RealizedVol(short))
	assert.False(t, HaltForVolatility(short, 0.0001))
}

func TestRealizedVolConstantSeriesIsZero(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 250.0
	}
	assert.Zero(t, RealizedVol(flat))
}

func TestHaltForVolatilityOnSwingingSeries(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		if i%2 == 0 {
			prices[i] = 100
		} else {
			prices[i] = 110
		}
	}
	// Alternating +-9.5% log returns, stddev well above 5%.
	assert.True(t, HaltForVolatility(prices, 0.05))
	assert.False(t, HaltForVolatility(prices, 0.20))
}

func newTestChecker(clk core.Clock) *PreTradeChecker {
	sanitizer := NewSanitizer([]string{"USDC", "WETH", "WBTC"}, 0.45, 0.15, "USDC")
	limiter := NewExecutionRateLimiter(10*time.Minute, 4, clk)
	return NewPreTradeChecker(sanitizer, limiter, 0.25, 30*time.Second, 0.01, 0.05, clk)
}

func TestCheckerReturnsTargetsEvenWhenHalted(t *testing.T) {
	clk := mock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	checker := newTestChecker(clk)

	current := core.Allocation{"USDC": 0.5, "WETH": 0.5}
	proposed := core.Allocation{"WETH": 1.0}
	snap := MarketSnapshot{
		Symbol:         "WETH",
		QuotedPrice:    2000,
		ReferencePrice: 2000,
		UpdatedAt:      clk.Now().Add(-5 * time.Minute),
	}

	targets, err := checker.Check(current, proposed, snap)
	require.ErrorIs(t, err, ErrStalePrice)
	assert.InDelta(t, 1.0, targets.Sum(), 1e-12)
}

func TestCheckerPassesOnHealthyMarket(t *testing.T) {
	clk := mock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	checker := newTestChecker(clk)

	snap := MarketSnapshot{
		Symbol:         "WETH",
		QuotedPrice:    2001,
		ReferencePrice: 2000,
		UpdatedAt:      clk.Now(),
	}
	_, err := checker.Check(core.Allocation{"USDC": 1}, core.Allocation{"WETH": 0.5, "USDC": 0.5}, snap)
	assert.NoError(t, err)
}

func TestCheckerSlippageAndVolatilityReasons(t *testing.T) {
	clk := mock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	checker := newTestChecker(clk)

	err := checker.CheckMarket(MarketSnapshot{
		Symbol:         "WETH",
		QuotedPrice:    2100,
		ReferencePrice: 2000,
		UpdatedAt:      clk.Now(),
	})
	assert.ErrorIs(t, err, ErrExcessSlippage)

	swings := make([]float64, 20)
	for i := range swings {
		if i%2 == 0 {
			swings[i] = 2000
		} else {
			swings[i] = 2200
		}
	}
	err = checker.CheckMarket(MarketSnapshot{
		Symbol:         "WETH",
		QuotedPrice:    2000,
		ReferencePrice: 2000,
		UpdatedAt:      clk.Now(),
		RecentPrices:   swings,
	})
	assert.ErrorIs(t, err, ErrExcessVolatility)
}
