// Package core defines the shared types and collaborator contracts for the
// rebalancing agent. External services (venue API, market data, reference
// oracle) are consumed through the narrow interfaces below and are assumed
// unreliable, rate-limited, and occasionally wrong; adapters convert their
// failures into conservative well-typed values at this boundary.
package core

import (
	"context"
	"time"
)

// QuoteSource provides the current executable price and venue metadata for
// one order.
type QuoteSource interface {
	GetBestQuote(ctx context.Context, order Order) (Quote, error)
}

// OrderSender submits orders to the venue and extracts realized execution
// prices from the opaque receipts it returns. ExecPrice returns 0 for an
// unrecognized or failed receipt.
type OrderSender interface {
	SendOrder(ctx context.Context, order Order) (Receipt, error)
	ExecPrice(receipt Receipt) float64
}

// BalanceSource reports spendable balances and approved allowances.
// Implementations return 0 on lookup failure so that sufficiency checks
// fail closed.
type BalanceSource interface {
	Balance(ctx context.Context, asset string) float64
	Allowance(ctx context.Context, asset, spender string) float64
}

// ReferenceOracle is an independent price source used for impact and
// slippage cross-checks. It must not be the same feed as the venue quote.
// Returns 0 on failure so dependent checks fail closed.
type ReferenceOracle interface {
	ReferencePrice(ctx context.Context, base, quote string) float64
}

// MarketData exposes the latest observed price and a bounded trailing price
// history per symbol, feeding the freshness and volatility breakers.
type MarketData interface {
	LastPrice(symbol string) (price float64, updatedAt time.Time)
	History(symbol string) []float64
}

// AllocationProposer produces a target allocation for the portfolio. The
// proposal is untrusted and always passes through the full guard pipeline.
type AllocationProposer interface {
	Propose(ctx context.Context, current Allocation) (Allocation, error)
}

// Clock abstracts wall time and sleeping so guard state machines can be
// tested without real delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// Logger defines the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}
