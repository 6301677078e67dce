package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"rebalancer/internal/core"
)

// PaperVenue simulates a custodial venue for dry runs. Quotes come from the
// live market data feed; fills happen instantly at the quoted price against
// an in-memory balance sheet. Nothing leaves the process.
type PaperVenue struct {
	market core.MarketData
	clock  core.Clock
	logger core.Logger

	mu       sync.Mutex
	balances map[string]float64
}

// NewPaperVenue creates a simulated venue seeded with the given balances.
func NewPaperVenue(market core.MarketData, clock core.Clock, balances map[string]float64, logger core.Logger) *PaperVenue {
	seeded := make(map[string]float64, len(balances))
	for asset, amount := range balances {
		seeded[asset] = amount
	}
	return &PaperVenue{
		market:   market,
		clock:    clock,
		logger:   logger.WithField("component", "paper_venue"),
		balances: seeded,
	}
}

// GetBestQuote quotes the latest feed price for the pair.
func (v *PaperVenue) GetBestQuote(ctx context.Context, order core.Order) (core.Quote, error) {
	price, updatedAt := v.market.LastPrice(order.Base)
	if price <= 0 {
		return core.Quote{}, fmt.Errorf("no feed price for %s/%s", order.Base, order.Quote)
	}
	return core.Quote{
		Price:     price,
		Timestamp: updatedAt,
		Venue:     "paper",
	}, nil
}

// SendOrder fills the order at the current feed price and settles both legs
// against the in-memory balances.
func (v *PaperVenue) SendOrder(ctx context.Context, order core.Order) (core.Receipt, error) {
	price, _ := v.market.LastPrice(order.Base)
	if price <= 0 {
		return nil, fmt.Errorf("no feed price for %s/%s", order.Base, order.Quote)
	}

	baseAmount := order.Amount
	notional := order.Amount * price
	if order.QuoteAmount {
		notional = order.Amount
		baseAmount = order.Amount / price
	}

	v.mu.Lock()
	if order.Side == core.SideBuy {
		if v.balances[order.Quote] < notional {
			v.mu.Unlock()
			return nil, fmt.Errorf("paper balance too low: need %.2f %s, have %.2f", notional, order.Quote, v.balances[order.Quote])
		}
		v.balances[order.Quote] -= notional
		v.balances[order.Base] += baseAmount
	} else {
		if v.balances[order.Base] < baseAmount {
			v.mu.Unlock()
			return nil, fmt.Errorf("paper balance too low: need %.8f %s, have %.8f", baseAmount, order.Base, v.balances[order.Base])
		}
		v.balances[order.Base] -= baseAmount
		v.balances[order.Quote] += notional
	}
	v.mu.Unlock()

	v.logger.Info("Paper fill",
		"pair", order.Base+"/"+order.Quote,
		"side", order.Side,
		"amount", baseAmount,
		"price", price)

	return core.Receipt{
		"id":        uuid.NewString(),
		"status":    "filled",
		"price":     price,
		"timestamp": v.clock.Now().Unix(),
	}, nil
}

// ExecPrice extracts the fill price from a paper receipt.
func (v *PaperVenue) ExecPrice(receipt core.Receipt) float64 {
	if p, ok := receipt["price"].(float64); ok {
		return p
	}
	return 0
}

// Balance returns the simulated spendable balance.
func (v *PaperVenue) Balance(ctx context.Context, asset string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[asset]
}

// Allowance mirrors Balance; the paper venue is custodial.
func (v *PaperVenue) Allowance(ctx context.Context, asset, spender string) float64 {
	return v.Balance(ctx, asset)
}
