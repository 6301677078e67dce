package guard

import (
	"fmt"
	"math"
	"time"

	"rebalancer/internal/core"
)

// minVolSamples is the minimum price history length before realized
// volatility is considered meaningful. Below this the estimate is zero so
// the breaker never halts on insufficient data.
const minVolSamples = 10

// PriceFresh reports whether a price observation is recent enough to act
// on. The boundary is inclusive: an observation aged exactly maxAge is
// still fresh.
func PriceFresh(updatedAt, now time.Time, maxAge time.Duration) bool {
	return now.Sub(updatedAt) <= maxAge
}

// WithinSlippage reports whether the relative difference between a quoted
// and a reference price is tolerable. Fails closed when either price is
// non-positive.
func WithinSlippage(quoted, reference, maxPct float64) bool {
	if quoted <= 0 || reference <= 0 {
		return false
	}
	slip := math.Abs(quoted-reference) / reference
	return slip <= maxPct
}

// WithinPriceImpact reports whether an execution or venue price deviates
// tolerably from an independent reference price. Fails closed when either
// price is non-positive.
func WithinPriceImpact(price, reference, maxPct float64) bool {
	if price <= 0 || reference <= 0 {
		return false
	}
	impact := math.Abs(price-reference) / reference
	return impact <= maxPct
}

// RealizedVol computes the standard deviation of log-returns over the
// trailing price history. Fewer than minVolSamples prices, or a history
// with no usable returns, yields zero.
func RealizedVol(prices []float64) float64 {
	if len(prices) < minVolSamples {
		return 0
	}
	rets := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		rets = append(rets, math.Log(prices[i]/prices[i-1]))
	}
	if len(rets) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets))
	return math.Sqrt(variance)
}

// HaltForVolatility reports whether realized volatility over the trailing
// history has reached the halt threshold.
func HaltForVolatility(prices []float64, threshold float64) bool {
	return RealizedVol(prices) >= threshold
}

// MarketSnapshot carries the per-symbol observations the sanity breakers
// need for one cycle.
type MarketSnapshot struct {
	Symbol         string
	QuotedPrice    float64
	ReferencePrice float64
	UpdatedAt      time.Time
	RecentPrices   []float64
}

// PreTradeChecker composes the sanitizer, turnover limiter, market sanity
// breakers and execution rate limiter into the unified pre-trade checklist
// run once per rebalance cycle.
type PreTradeChecker struct {
	sanitizer   *Sanitizer
	rateLimiter *ExecutionRateLimiter
	maxTurnover float64
	maxPriceAge time.Duration
	maxSlippage float64
	volHalt     float64
	clock       core.Clock
}

// NewPreTradeChecker wires the checker. The rate limiter is shared,
// long-lived state owned by the caller.
func NewPreTradeChecker(
	sanitizer *Sanitizer,
	rateLimiter *ExecutionRateLimiter,
	maxTurnover float64,
	maxPriceAge time.Duration,
	maxSlippage float64,
	volHalt float64,
	clock core.Clock,
) *PreTradeChecker {
	return &PreTradeChecker{
		sanitizer:   sanitizer,
		rateLimiter: rateLimiter,
		maxTurnover: maxTurnover,
		maxPriceAge: maxPriceAge,
		maxSlippage: maxSlippage,
		volHalt:     volHalt,
		clock:       clock,
	}
}

// SafeTargets sanitizes the proposal and applies the turnover bound
// relative to the current allocation. This never fails: malformed
// proposals are neutralized, not rejected.
func (c *PreTradeChecker) SafeTargets(current, proposed core.Allocation) core.Allocation {
	return LimitTurnover(current, c.sanitizer.Sanitize(proposed), c.maxTurnover)
}

// CheckMarket runs the three independent market breakers against one
// symbol's observations. The first failing check short-circuits with its
// specific reason; a halt skips the whole cycle.
func (c *PreTradeChecker) CheckMarket(snap MarketSnapshot) error {
	if !PriceFresh(snap.UpdatedAt, c.clock.Now(), c.maxPriceAge) {
		return fmt.Errorf("%w: %s last update %s", ErrStalePrice, snap.Symbol, snap.UpdatedAt.Format(time.RFC3339))
	}
	if !WithinSlippage(snap.QuotedPrice, snap.ReferencePrice, c.maxSlippage) {
		return fmt.Errorf("%w: %s quoted=%.6f reference=%.6f", ErrExcessSlippage, snap.Symbol, snap.QuotedPrice, snap.ReferencePrice)
	}
	if HaltForVolatility(snap.RecentPrices, c.volHalt) {
		return fmt.Errorf("%w: %s realized vol %.4f >= %.4f", ErrExcessVolatility, snap.Symbol, RealizedVol(snap.RecentPrices), c.volHalt)
	}
	return nil
}

// CheckRate consults the execution rate limiter.
func (c *PreTradeChecker) CheckRate() error {
	if !c.rateLimiter.Allow() {
		return ErrRateLimited
	}
	return nil
}

// Check runs the full checklist for one symbol: sanitize, limit turnover,
// then market sanity and rate limiting. The safe targets are returned even
// when a breaker halts the cycle, so callers can log what would have been
// traded.
func (c *PreTradeChecker) Check(current, proposed core.Allocation, snap MarketSnapshot) (core.Allocation, error) {
	targets := c.SafeTargets(current, proposed)
	if err := c.CheckMarket(snap); err != nil {
		return targets, err
	}
	if err := c.CheckRate(); err != nil {
		return targets, err
	}
	return targets, nil
}
