package guard

import (
	"context"
	"fmt"
	"math"

	"rebalancer/internal/core"
	"rebalancer/internal/telemetry"
)

// Executor is the only component allowed to send orders. Every send passes
// through the failure breaker, per-order validation, a fresh quote per
// attempt, and a post-fill slippage verification. Nothing upstream holds a
// reference to the order sender.
type Executor struct {
	quotes    core.QuoteSource
	sender    core.OrderSender
	oracle    core.ReferenceOracle
	validator *Validator
	breaker   *FailureBreaker
	policy    Policy
	clock     core.Clock
	logger    core.Logger
}

func NewExecutor(
	quotes core.QuoteSource,
	sender core.OrderSender,
	oracle core.ReferenceOracle,
	validator *Validator,
	breaker *FailureBreaker,
	policy Policy,
	clock core.Clock,
	logger core.Logger,
) *Executor {
	return &Executor{
		quotes:    quotes,
		sender:    sender,
		oracle:    oracle,
		validator: validator,
		breaker:   breaker,
		policy:    policy,
		clock:     clock,
		logger:    logger.WithField("component", "executor"),
	}
}

// Execute validates and sends one logical order, possibly as several child
// orders. On a mid-sequence abort the receipts of the children that did
// fill are returned alongside the error so the caller can reconcile.
func (e *Executor) Execute(ctx context.Context, order core.Order) ([]core.Receipt, error) {
	if !e.breaker.Allow() {
		return nil, fmt.Errorf("%w: %d consecutive failures", ErrBreakerOpen, e.policy.MaxConsecutiveFailures)
	}

	quote, err := e.quotes.GetBestQuote(ctx, order)
	if err != nil {
		e.breaker.RecordFailure()
		return nil, fmt.Errorf("fetching quote for %s/%s: %w", order.Base, order.Quote, err)
	}
	refPrice := e.oracle.ReferencePrice(ctx, order.Base, order.Quote)

	children, err := e.validator.Validate(ctx, order, quote, refPrice)
	if err != nil {
		e.breaker.RecordFailure()
		return nil, err
	}

	receipts := make([]core.Receipt, 0, len(children))
	for i, child := range children {
		receipt, err := e.executeChild(ctx, child, refPrice)
		if err != nil {
			e.logger.Error("Aborting order sequence",
				"pair", order.Base+"/"+order.Quote,
				"filled", i,
				"total", len(children),
				"error", err)
			return receipts, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

// executeChild sends one child order with a bounded retry loop. Each
// attempt re-quotes so a retry never executes against the price that just
// failed, and the realized fill price is verified against the quote it was
// sent at.
func (e *Executor) executeChild(ctx context.Context, child core.Order, refPrice float64) (core.Receipt, error) {
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxRetries; attempt++ {
		if attempt > 1 {
			telemetry.GetGlobalMetrics().OrderRetriesTotal.Inc()
			e.clock.Sleep(e.policy.Backoff)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.breaker.Allow() {
			return nil, fmt.Errorf("%w: tripped mid-sequence", ErrBreakerOpen)
		}

		quote, err := e.quotes.GetBestQuote(ctx, child)
		if err != nil {
			lastErr = err
			e.breaker.RecordFailure()
			continue
		}
		if !PriceFresh(quote.Timestamp, e.clock.Now(), e.policy.MaxPriceAge) {
			lastErr = ErrStaleQuote
			e.breaker.RecordFailure()
			continue
		}
		if refPrice > 0 && !WithinSlippage(quote.Price, refPrice, e.policy.MaxSlippagePct) {
			lastErr = fmt.Errorf("%w: quoted=%.6f reference=%.6f", ErrExcessSlippage, quote.Price, refPrice)
			e.breaker.RecordFailure()
			continue
		}

		receipt, err := e.sender.SendOrder(ctx, child)
		if err != nil {
			lastErr = err
			e.breaker.RecordFailure()
			e.logger.Warn("Order send failed",
				"pair", child.Base+"/"+child.Quote,
				"attempt", attempt,
				"error", err)
			continue
		}

		// Verify the realized price against the quote this attempt was
		// sent at. A fill outside tolerance counts as a failed attempt
		// and goes back through the retry loop.
		if execPrice := e.sender.ExecPrice(receipt); execPrice > 0 && quote.Price > 0 {
			realized := math.Abs(execPrice-quote.Price) / quote.Price
			telemetry.GetGlobalMetrics().SlippageObserved.Observe(realized)
			if realized > e.policy.MaxSlippagePct {
				lastErr = fmt.Errorf("%w: quoted=%.6f executed=%.6f", ErrExcessSlippage, quote.Price, execPrice)
				e.breaker.RecordFailure()
				e.logger.Warn("Fill exceeded slippage tolerance, retrying",
					"pair", child.Base+"/"+child.Quote,
					"attempt", attempt,
					"quoted", quote.Price,
					"executed", execPrice,
					"slippage", realized)
				continue
			}
		}

		e.breaker.RecordSuccess()
		telemetry.GetGlobalMetrics().OrdersSentTotal.Inc()
		return receipt, nil
	}

	telemetry.GetGlobalMetrics().OrdersFailedTotal.Inc()
	return nil, fmt.Errorf("%w: %d attempts, last error: %v", ErrRetriesExhausted, e.policy.MaxRetries, lastErr)
}
