package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rebalancer/internal/core"
)

// Venue is an in-memory trading venue implementing the quote, order,
// balance and reference oracle interfaces. Prices, balances and failure
// behavior are set directly by tests; per-call state is mutex guarded so
// concurrent executors can share one instance.
type Venue struct {
	mu sync.Mutex

	clock core.Clock

	prices     map[string]float64 // pair "BASE/QUOTE" -> price
	refPrices  map[string]float64 // pair -> independent reference price
	quoteAge   time.Duration
	balances   map[string]float64
	allowances map[string]float64 // "asset:spender" -> amount

	history map[string][]float64

	okSends    int // sends that succeed before failSends kicks in
	failSends  int // next N sends error out
	execOffset float64
	sent       []core.Order
}

func NewVenue(clock core.Clock) *Venue {
	return &Venue{
		clock:      clock,
		prices:     make(map[string]float64),
		refPrices:  make(map[string]float64),
		balances:   make(map[string]float64),
		allowances: make(map[string]float64),
		history:    make(map[string][]float64),
	}
}

func pairKey(base, quote string) string { return base + "/" + quote }

// SetPrice sets the venue price for a pair. The reference price follows
// unless SetReferencePrice overrides it.
func (v *Venue) SetPrice(base, quote string, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prices[pairKey(base, quote)] = price
	if _, ok := v.refPrices[pairKey(base, quote)]; !ok {
		v.refPrices[pairKey(base, quote)] = price
	}
}

func (v *Venue) SetReferencePrice(base, quote string, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refPrices[pairKey(base, quote)] = price
}

// SetQuoteAge makes subsequent quotes appear this old.
func (v *Venue) SetQuoteAge(age time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.quoteAge = age
}

func (v *Venue) SetBalance(asset string, amount float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[asset] = amount
}

func (v *Venue) SetAllowance(asset, spender string, amount float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowances[asset+":"+spender] = amount
}

// FailNextSends makes the next n SendOrder calls return an error.
func (v *Venue) FailNextSends(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.okSends = 0
	v.failSends = n
}

// AllowSendsThenFail lets ok sends succeed, then fails the following n.
func (v *Venue) AllowSendsThenFail(ok, n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.okSends = ok
	v.failSends = n
}

// SetExecOffset shifts realized fill prices by a fraction of the quoted
// price, simulating slippage.
func (v *Venue) SetExecOffset(frac float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.execOffset = frac
}

func (v *Venue) SetHistory(symbol string, prices []float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.history[symbol] = append([]float64(nil), prices...)
}

// SentOrders returns a copy of every order accepted so far.
func (v *Venue) SentOrders() []core.Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]core.Order(nil), v.sent...)
}

func (v *Venue) GetBestQuote(ctx context.Context, order core.Order) (core.Quote, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	price, ok := v.prices[pairKey(order.Base, order.Quote)]
	if !ok {
		return core.Quote{}, fmt.Errorf("no market for %s/%s", order.Base, order.Quote)
	}
	return core.Quote{
		Price:     price,
		Timestamp: v.clock.Now().Add(-v.quoteAge),
		Venue:     "mock",
	}, nil
}

func (v *Venue) SendOrder(ctx context.Context, order core.Order) (core.Receipt, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.okSends > 0 {
		v.okSends--
	} else if v.failSends > 0 {
		v.failSends--
		return nil, fmt.Errorf("venue unavailable")
	}
	price := v.prices[pairKey(order.Base, order.Quote)]
	exec := price * (1 + v.execOffset)
	v.sent = append(v.sent, order)
	return core.Receipt{
		"id":        uuid.NewString(),
		"status":    "filled",
		"execPrice": exec,
	}, nil
}

func (v *Venue) ExecPrice(receipt core.Receipt) float64 {
	if p, ok := receipt["execPrice"].(float64); ok {
		return p
	}
	return 0
}

func (v *Venue) Balance(ctx context.Context, asset string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[asset]
}

func (v *Venue) Allowance(ctx context.Context, asset, spender string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.allowances[asset+":"+spender]
}

func (v *Venue) ReferencePrice(ctx context.Context, base, quote string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refPrices[pairKey(base, quote)]
}

func (v *Venue) LastPrice(symbol string) (float64, time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.prices[pairKey(symbol, "USDC")], v.clock.Now().Add(-v.quoteAge)
}

func (v *Venue) History(symbol string) []float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]float64(nil), v.history[symbol]...)
}
