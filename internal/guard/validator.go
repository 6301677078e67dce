package guard

import (
	"context"
	"fmt"

	"rebalancer/internal/core"
	"rebalancer/internal/telemetry"
)

// Validator runs the per-order admission checks against a quote and an
// independent reference price, then splits oversized orders. A rejection
// applies to this order only; sibling orders in the same cycle are
// unaffected.
type Validator struct {
	policy   Policy
	balances core.BalanceSource
	clock    core.Clock
	spender  string
	logger   core.Logger
}

// NewValidator creates a validator. spender is the venue contract checked
// for token allowances; empty disables the allowance check (custodial
// venues hold the funds themselves).
func NewValidator(policy Policy, balances core.BalanceSource, clock core.Clock, spender string, logger core.Logger) *Validator {
	return &Validator{
		policy:   policy,
		balances: balances,
		clock:    clock,
		spender:  spender,
		logger:   logger.WithField("component", "validator"),
	}
}

// Validate admits or rejects one order given the venue quote and the
// reference price, returning the child orders to execute. The checks run
// in a fixed order and the first failure wins: quote usability, minimum
// notional, dust, balance, allowance, price impact. Orders above the split
// threshold come back as equal parts.
func (v *Validator) Validate(ctx context.Context, order core.Order, quote core.Quote, refPrice float64) ([]core.Order, error) {
	if quote.Price <= 0 {
		telemetry.GetGlobalMetrics().IncOrderRejected("stale_quote")
		return nil, fmt.Errorf("%w: non-positive price %.8f from %s", ErrStaleQuote, quote.Price, quote.Venue)
	}
	if !PriceFresh(quote.Timestamp, v.clock.Now(), v.policy.MaxPriceAge) {
		telemetry.GetGlobalMetrics().IncOrderRejected("stale_quote")
		return nil, fmt.Errorf("%w: quote from %s aged out", ErrStaleQuote, quote.Timestamp.Format("15:04:05.000"))
	}

	notional, baseAmount := orderSizes(order, quote.Price)

	if notional < v.policy.MinNotionalQuote {
		telemetry.GetGlobalMetrics().IncOrderRejected("below_min_notional")
		return nil, fmt.Errorf("%w: %.2f < %.2f %s", ErrBelowMinNotional, notional, v.policy.MinNotionalQuote, order.Quote)
	}
	// Dust applies to base-denominated orders only; a quote-denominated
	// order's base amount is an estimate off the quoted price.
	if !order.QuoteAmount && baseAmount < v.policy.MinBaseAmount {
		telemetry.GetGlobalMetrics().IncOrderRejected("dust")
		return nil, fmt.Errorf("%w: %.12f %s", ErrDustAmount, baseAmount, order.Base)
	}

	fundingAsset, needed := order.Quote, notional
	if order.Side == core.SideSell {
		fundingAsset, needed = order.Base, baseAmount
	}
	if bal := v.balances.Balance(ctx, fundingAsset); bal < needed {
		telemetry.GetGlobalMetrics().IncOrderRejected("balance")
		return nil, fmt.Errorf("%w: have %.8f need %.8f %s", ErrInsufficientBalance, bal, needed, fundingAsset)
	}
	if v.spender != "" {
		if allowance := v.balances.Allowance(ctx, fundingAsset, v.spender); allowance < needed {
			telemetry.GetGlobalMetrics().IncOrderRejected("allowance")
			return nil, fmt.Errorf("%w: approved %.8f need %.8f %s for %s", ErrInsufficientAllowance, allowance, needed, fundingAsset, v.spender)
		}
	}

	if !WithinPriceImpact(quote.Price, refPrice, v.policy.MaxPriceImpactPct) {
		telemetry.GetGlobalMetrics().IncOrderRejected("price_impact")
		return nil, fmt.Errorf("%w: quoted=%.6f reference=%.6f", ErrPriceImpact, quote.Price, refPrice)
	}

	if notional > v.policy.SplitThresholdQuote && v.policy.SplitParts > 1 {
		v.logger.Info("Splitting large order",
			"pair", order.Base+"/"+order.Quote,
			"notional", notional,
			"parts", v.policy.SplitParts)
		return order.Split(v.policy.SplitParts), nil
	}
	return []core.Order{order}, nil
}

// orderSizes resolves an order's quote notional and base amount from the
// quoted price, whichever unit the order is denominated in.
func orderSizes(order core.Order, price float64) (notional, baseAmount float64) {
	if order.QuoteAmount {
		return order.Amount, order.Amount / price
	}
	return order.Amount * price, order.Amount
}
