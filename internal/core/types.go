package core

import (
	"time"
)

// Side identifies the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order represents a single trade request against the venue. Orders are
// immutable once constructed; a large order is decomposed into several
// smaller Orders rather than mutated in place.
type Order struct {
	Side  Side
	Base  string // e.g. "WETH"
	Quote string // e.g. "USDC"

	// Amount is denominated in base units unless QuoteAmount is set, in
	// which case it is denominated in quote units.
	Amount      float64
	QuoteAmount bool
}

// Split decomposes the order into n equal-amount child orders preserving
// side, assets and denomination. The child amounts sum to the original
// amount. n <= 1 returns the order unchanged as a single-element batch.
func (o Order) Split(n int) []Order {
	if n <= 1 {
		return []Order{o}
	}
	per := o.Amount / float64(n)
	parts := make([]Order, 0, n)
	for i := 0; i < n; i++ {
		child := o
		child.Amount = per
		parts = append(parts, child)
	}
	return parts
}

// Quote is a normalized price/liquidity observation for one order. A quote
// is produced fresh per execution attempt and never cached across retries.
type Quote struct {
	Price            float64 // base/quote
	Timestamp        time.Time
	Venue            string
	ExpectedSlippage float64 // quoted slippage expectation, fraction
	Liquidity        float64 // rough liquidity score, 0-1
}

// Receipt is the opaque result of a sent order as returned by the venue.
// The pipeline does not interpret its contents beyond extracting an
// execution price through the OrderSender collaborator.
type Receipt map[string]interface{}
