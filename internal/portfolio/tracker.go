package portfolio

import (
	"sync"

	"rebalancer/internal/core"
)

// Tracker maintains the open position set and evaluates exit rules against
// incoming prices. It proposes exits; it never sends orders itself.
type Tracker struct {
	mu        sync.Mutex
	positions map[string]*Position
	rules     ExitRules
	clock     core.Clock
	logger    core.Logger
}

// ExitSignal is a recommendation to close one position.
type ExitSignal struct {
	Position Position
	Reason   ExitReason
	Price    float64
}

func NewTracker(rules ExitRules, clock core.Clock, logger core.Logger) *Tracker {
	return &Tracker{
		positions: make(map[string]*Position),
		rules:     rules,
		clock:     clock,
		logger:    logger.WithField("component", "position_tracker"),
	}
}

// Open records a new position or averages into an existing one.
func (t *Tracker) Open(symbol string, amount, price float64) {
	if amount <= 0 || price <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.positions[symbol]; ok {
		total := p.Amount + amount
		p.EntryPrice = (p.EntryPrice*p.Amount + price*amount) / total
		p.Amount = total
		if price > p.PeakPrice {
			p.PeakPrice = price
		}
		return
	}
	t.positions[symbol] = &Position{
		Symbol:     symbol,
		Amount:     amount,
		EntryPrice: price,
		PeakPrice:  price,
		OpenedAt:   t.clock.Now(),
	}
}

// Reduce shrinks a position after a sell, dropping it entirely when the
// remainder is negligible.
func (t *Tracker) Reduce(symbol string, amount float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[symbol]
	if !ok {
		return
	}
	p.Amount -= amount
	if p.Amount <= 1e-12 {
		delete(t.positions, symbol)
	}
}

// Evaluate runs the exit rules for every open position against current
// prices and returns the positions that should be closed. Positions with
// no price in the map are skipped, not exited.
func (t *Tracker) Evaluate(prices map[string]float64) []ExitSignal {
	t.mu.Lock()
	defer t.mu.Unlock()

	var signals []ExitSignal
	for symbol, p := range t.positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		if reason := p.Update(price, t.rules); reason != ExitNone {
			t.logger.Info("Exit rule triggered",
				"symbol", symbol,
				"reason", string(reason),
				"entry", p.EntryPrice,
				"price", price,
				"pnl_pct", p.PnLPct(price))
			signals = append(signals, ExitSignal{Position: *p, Reason: reason, Price: price})
		}
	}
	return signals
}

// Positions returns a copy of the open position set.
func (t *Tracker) Positions() map[string]Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Position, len(t.positions))
	for sym, p := range t.positions {
		out[sym] = *p
	}
	return out
}

// Restore replaces the position set, used at startup from the store.
func (t *Tracker) Restore(positions map[string]Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.positions = make(map[string]*Position, len(positions))
	for sym, p := range positions {
		cp := p
		t.positions[sym] = &cp
	}
}
