package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebalancer/internal/core"
	"rebalancer/internal/mock"
	"rebalancer/pkg/logging"
)

func newValidatorFixture(spender string) (*Validator, *mock.Venue, *mock.Clock) {
	clk := mock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	venue := mock.NewVenue(clk)
	v := NewValidator(DefaultPolicy(), venue, clk, spender, logging.NewNopLogger())
	return v, venue, clk
}

func freshQuote(clk *mock.Clock, price float64) core.Quote {
	return core.Quote{Price: price, Timestamp: clk.Now(), Venue: "mock"}
}

func TestValidateRejectsUnusableQuote(t *testing.T) {
	v, venue, clk := newValidatorFixture("")
	venue.SetBalance("USDC", 10000)
	order := core.Order{Side: core.SideBuy, Base: "WETH", Quote: "USDC", Amount: 500, QuoteAmount: true}

	_, err := v.Validate(context.Background(), order, core.Quote{Price: 0, Timestamp: clk.Now()}, 2000)
	assert.ErrorIs(t, err, ErrStaleQuote)

	stale := core.Quote{Price: 2000, Timestamp: clk.Now().Add(-31 * time.Second)}
	_, err = v.Validate(context.Background(), order, stale, 2000)
	assert.ErrorIs(t, err, ErrStaleQuote)
}

func TestValidateRejectsBelowMinNotional(t *testing.T) {
	v, venue, clk := newValidatorFixture("")
	venue.SetBalance("USDC", 10000)
	order := core.Order{Side: core.SideBuy, Base: "WETH", Quote: "USDC", Amount: 5, QuoteAmount: true}

	_, err := v.Validate(context.Background(), order, freshQuote(clk, 2000), 2000)
	assert.ErrorIs(t, err, ErrBelowMinNotional)
}

func TestValidateRejectsDustOnBaseDenominatedOrders(t *testing.T) {
	v, venue, clk := newValidatorFixture("")
	venue.SetBalance("WETH", 1)
	// Huge price keeps the notional passing while the base amount vanishes.
	order := core.Order{Side: core.SideSell, Base: "WETH", Quote: "USDC", Amount: 1e-11}

	_, err := v.Validate(context.Background(), order, freshQuote(clk, 1e13), 1e13)
	assert.ErrorIs(t, err, ErrDustAmount)
}

func TestValidateSkipsDustCheckOnQuoteDenominatedOrders(t *testing.T) {
	v, venue, clk := newValidatorFixture("")
	venue.SetBalance("USDC", 1e15)
	// The converted base amount is microscopic, but dust only applies to
	// orders denominated in base units.
	order := core.Order{Side: core.SideBuy, Base: "WETH", Quote: "USDC", Amount: 100, QuoteAmount: true}

	children, err := v.Validate(context.Background(), order, freshQuote(clk, 1e13), 1e13)
	require.NoError(t, err)
	require.Len(t, children, 1)
}

func TestValidateChecksFundingSideBalance(t *testing.T) {
	v, venue, clk := newValidatorFixture("")
	venue.SetBalance("USDC", 100)
	venue.SetBalance("WETH", 0.01)

	buy := core.Order{Side: core.SideBuy, Base: "WETH", Quote: "USDC", Amount: 500, QuoteAmount: true}
	_, err := v.Validate(context.Background(), buy, freshQuote(clk, 2000), 2000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	sell := core.Order{Side: core.SideSell, Base: "WETH", Quote: "USDC", Amount: 0.05}
	_, err = v.Validate(context.Background(), sell, freshQuote(clk, 2000), 2000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// A sell funded by the base asset ignores the quote balance.
	smallSell := core.Order{Side: core.SideSell, Base: "WETH", Quote: "USDC", Amount: 0.008}
	_, err = v.Validate(context.Background(), smallSell, freshQuote(clk, 2000), 2000)
	assert.NoError(t, err)
}

func TestValidateChecksAllowanceWhenSpenderSet(t *testing.T) {
	v, venue, clk := newValidatorFixture("0xrouter")
	venue.SetBalance("USDC", 10000)
	venue.SetAllowance("USDC", "0xrouter", 100)

	order := core.Order{Side: core.SideBuy, Base: "WETH", Quote: "USDC", Amount: 500, QuoteAmount: true}
	_, err := v.Validate(context.Background(), order, freshQuote(clk, 2000), 2000)
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	venue.SetAllowance("USDC", "0xrouter", 10000)
	_, err = v.Validate(context.Background(), order, freshQuote(clk, 2000), 2000)
	assert.NoError(t, err)
}

func TestValidateRejectsPriceImpact(t *testing.T) {
	v, venue, clk := newValidatorFixture("")
	venue.SetBalance("USDC", 10000)

	order := core.Order{Side: core.SideBuy, Base: "WETH", Quote: "USDC", Amount: 500, QuoteAmount: true}
	_, err := v.Validate(context.Background(), order, freshQuote(clk, 2100), 2000)
	assert.ErrorIs(t, err, ErrPriceImpact)

	// Missing reference fails closed.
	_, err = v.Validate(context.Background(), order, freshQuote(clk, 2000), 0)
	assert.ErrorIs(t, err, ErrPriceImpact)
}

func TestValidateSplitsLargeOrders(t *testing.T) {
	v, venue, clk := newValidatorFixture("")
	venue.SetBalance("USDC", 100000)

	order := core.Order{Side: core.SideBuy, Base: "WETH", Quote: "USDC", Amount: 3000, QuoteAmount: true}
	children, err := v.Validate(context.Background(), order, freshQuote(clk, 2000), 2000)
	require.NoError(t, err)
	require.Len(t, children, 3)

	total := 0.0
	for _, c := range children {
		assert.Equal(t, order.Side, c.Side)
		assert.True(t, c.QuoteAmount)
		total += c.Amount
	}
	assert.InDelta(t, order.Amount, total, 1e-9)
}

func TestValidateSmallOrderPassesThrough(t *testing.T) {
	v, venue, clk := newValidatorFixture("")
	venue.SetBalance("USDC", 100000)

	order := core.Order{Side: core.SideBuy, Base: "WETH", Quote: "USDC", Amount: 500, QuoteAmount: true}
	children, err := v.Validate(context.Background(), order, freshQuote(clk, 2000), 2000)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, order, children[0])
}
