// Package portfolio tracks open positions, applies per-position exit rules
// and persists state across restarts.
package portfolio

import (
	"time"
)

// Position is one open holding with its entry context and trailing peak.
type Position struct {
	Symbol     string    `json:"symbol"`
	Amount     float64   `json:"amount"`
	EntryPrice float64   `json:"entry_price"`
	PeakPrice  float64   `json:"peak_price"`
	OpenedAt   time.Time `json:"opened_at"`
}

// ExitReason says why a position should be closed.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTrailing   ExitReason = "trailing_stop"
)

// ExitRules holds the per-position exit thresholds, all as fractions of
// the entry (or peak, for trailing) price.
type ExitRules struct {
	StopLossPct   float64 // close when price falls this far below entry
	TakeProfitPct float64 // close when price rises this far above entry
	TrailingPct   float64 // close when price falls this far below the peak
}

// DefaultExitRules matches a conservative momentum profile: cut losers at
// -7%, take profits at +10%, trail winners by 5%.
func DefaultExitRules() ExitRules {
	return ExitRules{
		StopLossPct:   0.07,
		TakeProfitPct: 0.10,
		TrailingPct:   0.05,
	}
}

// PnLPct returns the unrealized return relative to entry.
func (p *Position) PnLPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// Update records a new price observation, advancing the trailing peak, and
// returns the exit decision for this position. Stop loss is evaluated
// first: when both a stop and a target are crossed in one gap, the
// conservative exit wins.
func (p *Position) Update(price float64, rules ExitRules) ExitReason {
	if price <= 0 || p.EntryPrice <= 0 {
		return ExitNone
	}
	if price > p.PeakPrice {
		p.PeakPrice = price
	}

	pnl := p.PnLPct(price)
	if rules.StopLossPct > 0 && pnl <= -rules.StopLossPct {
		return ExitStopLoss
	}
	if rules.TakeProfitPct > 0 && pnl >= rules.TakeProfitPct {
		return ExitTakeProfit
	}
	if rules.TrailingPct > 0 && p.PeakPrice > p.EntryPrice {
		// The trail arms only after the position has been in profit;
		// before that the stop loss governs.
		drop := (p.PeakPrice - price) / p.PeakPrice
		if drop >= rules.TrailingPct {
			return ExitTrailing
		}
	}
	return ExitNone
}
