package guard

import "errors"

// Rejection reasons produced by the guard pipeline. Every rejection carries
// one of these sentinels so callers can branch on the kind while logs keep
// the full human-readable context.
var (
	// Market sanity / pre-trade halts (whole cycle is skipped).
	ErrStalePrice       = errors.New("stale price feed")
	ErrExcessSlippage   = errors.New("excessive slippage vs reference")
	ErrExcessVolatility = errors.New("volatility circuit breaker")
	ErrRateLimited      = errors.New("cooldown or hourly trade limit in effect")

	// Per-order rejections (sibling orders unaffected).
	ErrStaleQuote            = errors.New("stale quote")
	ErrBelowMinNotional      = errors.New("below minimum notional")
	ErrDustAmount            = errors.New("dust amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrPriceImpact           = errors.New("excessive price impact vs reference")

	// Execution-level failures.
	ErrBreakerOpen      = errors.New("failure breaker in cooloff")
	ErrRetriesExhausted = errors.New("retries exhausted")
)
