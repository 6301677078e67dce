package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rebalancer/internal/core"
	"rebalancer/internal/guard"
	"rebalancer/internal/portfolio"
	"rebalancer/internal/telemetry"
	"rebalancer/pkg/concurrency"
)

// Journal persists positions and the trade audit trail. Nil-safe wrappers
// below allow running without persistence in tests and dry runs.
type Journal interface {
	SavePositions(ctx context.Context, positions map[string]portfolio.Position) error
	RecordTrade(ctx context.Context, rec portfolio.TradeRecord) error
}

// Config carries the orchestrator's own knobs; all safety thresholds live
// in the guard policy, not here.
type Config struct {
	Symbols  []string
	Reserve  string
	Band     float64 // minimum weight drift worth trading
	Interval time.Duration
}

// Deps bundles the rebalancer's collaborators. Journal and Oracle may be
// nil; everything else is required.
type Deps struct {
	Proposer core.AllocationProposer
	Checker  *guard.PreTradeChecker
	Executor *guard.Executor
	Limiter  *guard.ExecutionRateLimiter
	Balances core.BalanceSource
	Market   core.MarketData
	Oracle   core.ReferenceOracle
	Sender   core.OrderSender
	Tracker  *portfolio.Tracker
	Journal  Journal
	Pool     *concurrency.WorkerPool
	Clock    core.Clock
	Logger   core.Logger
}

// Rebalancer runs the cycle. It is a thin coordinator: all trading
// decisions flow through the checker and the executor.
type Rebalancer struct {
	cfg    Config
	policy guard.Policy
	deps   Deps
	logger core.Logger
}

func NewRebalancer(cfg Config, policy guard.Policy, deps Deps) *Rebalancer {
	return &Rebalancer{
		cfg:    cfg,
		policy: policy,
		deps:   deps,
		logger: deps.Logger.WithField("component", "rebalancer"),
	}
}

// Run drives fixed-interval cycles until the context ends. Cycle errors
// are logged, never fatal: a skipped cycle is the pipeline doing its job.
func (r *Rebalancer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("Rebalancer started", "interval", r.cfg.Interval, "symbols", r.cfg.Symbols)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Rebalancer stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunCycle(ctx); err != nil {
				r.logger.Warn("Cycle did not complete", "error", err)
			}
		}
	}
}

// holding is one symbol's snapshot for a cycle.
type holding struct {
	amount float64
	price  float64
}

func (h holding) value() float64 { return h.amount * h.price }

// RunCycle performs one observe-propose-guard-execute pass.
func (r *Rebalancer) RunCycle(ctx context.Context) error {
	metrics := telemetry.GetGlobalMetrics()
	metrics.CyclesTotal.Inc()

	holdings := r.snapshot(ctx)
	total := 0.0
	for _, h := range holdings {
		total += h.value()
	}
	if total <= 0 {
		metrics.IncCycleSkipped("no_value")
		return fmt.Errorf("portfolio value is zero, nothing to rebalance")
	}
	metrics.PortfolioValue.Set(total)

	current := make(core.Allocation, len(holdings))
	prices := make(map[string]float64, len(holdings))
	for symbol, h := range holdings {
		current[symbol] = h.value() / total
		prices[symbol] = h.price
	}

	proposed, err := r.deps.Proposer.Propose(ctx, current)
	if err != nil {
		r.logger.Warn("Proposer failed, holding current allocation", "error", err)
		proposed = current.Clone()
	}

	// Exit rules override the proposer for the affected symbols.
	for _, sig := range r.deps.Tracker.Evaluate(prices) {
		proposed[sig.Position.Symbol] = 0
	}

	targets := r.deps.Checker.SafeTargets(current, proposed)

	for _, symbol := range r.activeSymbols(current, targets) {
		snap := r.marketSnapshot(ctx, symbol)
		if err := r.deps.Checker.CheckMarket(snap); err != nil {
			metrics.IncCycleSkipped(skipReason(err))
			r.logger.Warn("Market sanity check failed, skipping cycle", "symbol", symbol, "error", err)
			return err
		}
	}
	if err := r.deps.Checker.CheckRate(); err != nil {
		metrics.IncCycleSkipped(skipReason(err))
		r.logger.Info("Execution rate limited, skipping cycle")
		return err
	}

	orders := r.buildOrders(current, targets, total, prices)
	if len(orders) == 0 {
		r.logger.Debug("All drifts inside the rebalance band", "total_value", total)
		return nil
	}

	r.logger.Info("Executing rebalance",
		"orders", len(orders),
		"total_value", total,
		"targets", map[string]float64(targets))

	var firstErr error
	for _, order := range orders {
		receipts, err := r.deps.Executor.Execute(ctx, order)
		r.applyReceipts(ctx, order, receipts)
		if err != nil {
			r.logger.Error("Order not completed",
				"pair", order.Base+"/"+order.Quote,
				"side", order.Side,
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
			if errors.Is(err, guard.ErrBreakerOpen) {
				break
			}
			continue
		}
		r.deps.Limiter.NotifyExecuted()
	}

	r.persistPositions(ctx)
	return firstErr
}

// snapshot prefetches balances and prices for all symbols concurrently.
func (r *Rebalancer) snapshot(ctx context.Context) map[string]holding {
	var mu sync.Mutex
	var wg sync.WaitGroup
	holdings := make(map[string]holding, len(r.cfg.Symbols))

	for _, symbol := range r.cfg.Symbols {
		symbol := symbol
		wg.Add(1)
		task := func() {
			defer wg.Done()
			amount := r.deps.Balances.Balance(ctx, symbol)
			price := 1.0
			if symbol != r.cfg.Reserve {
				price, _ = r.deps.Market.LastPrice(symbol)
			}
			mu.Lock()
			holdings[symbol] = holding{amount: amount, price: price}
			mu.Unlock()
		}
		if err := r.deps.Pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	return holdings
}

// marketSnapshot assembles the observations the sanity breakers need for
// one symbol.
func (r *Rebalancer) marketSnapshot(ctx context.Context, symbol string) guard.MarketSnapshot {
	price, updatedAt := r.deps.Market.LastPrice(symbol)
	return guard.MarketSnapshot{
		Symbol:         symbol,
		QuotedPrice:    price,
		ReferencePrice: r.referencePrice(ctx, symbol),
		UpdatedAt:      updatedAt,
		RecentPrices:   r.deps.Market.History(symbol),
	}
}

// activeSymbols lists the non-reserve symbols with weight on either side,
// sorted for deterministic check order.
func (r *Rebalancer) activeSymbols(current, targets core.Allocation) []string {
	seen := make(map[string]struct{})
	for symbol, w := range current {
		if w > 0 {
			seen[symbol] = struct{}{}
		}
	}
	for symbol, w := range targets {
		if w > 0 {
			seen[symbol] = struct{}{}
		}
	}
	delete(seen, r.cfg.Reserve)

	out := make([]string, 0, len(seen))
	for symbol := range seen {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// buildOrders converts weight deltas into venue orders, sells before buys
// so the reserve asset is replenished before it is spent. Sells are
// denominated in base units, buys in reserve units.
func (r *Rebalancer) buildOrders(current, targets core.Allocation, total float64, prices map[string]float64) []core.Order {
	var sells, buys []core.Order
	for _, symbol := range r.activeSymbols(current, targets) {
		delta := targets[symbol] - current[symbol]
		if math.Abs(delta) < r.cfg.Band {
			continue
		}
		notional := math.Abs(delta) * total
		if delta < 0 {
			price := prices[symbol]
			if price <= 0 {
				r.logger.Warn("No price for sell order, skipping", "symbol", symbol)
				continue
			}
			sells = append(sells, core.Order{
				Side:   core.SideSell,
				Base:   symbol,
				Quote:  r.cfg.Reserve,
				Amount: notional / price,
			})
		} else {
			buys = append(buys, core.Order{
				Side:        core.SideBuy,
				Base:        symbol,
				Quote:       r.cfg.Reserve,
				Amount:      notional,
				QuoteAmount: true,
			})
		}
	}
	return append(sells, buys...)
}

// applyReceipts updates the tracker and the audit trail from whatever
// actually filled, including partial sequences.
func (r *Rebalancer) applyReceipts(ctx context.Context, order core.Order, receipts []core.Receipt) {
	if len(receipts) == 0 {
		return
	}

	parts := 1
	if r.policy.SplitParts > 1 {
		notional := order.Amount
		if !order.QuoteAmount {
			// Base-denominated sells: approximate notional from the
			// first fill price.
			if p := r.deps.Sender.ExecPrice(receipts[0]); p > 0 {
				notional = order.Amount * p
			}
		}
		if notional > r.policy.SplitThresholdQuote {
			parts = r.policy.SplitParts
		}
	}
	childAmount := order.Amount / float64(parts)

	for _, receipt := range receipts {
		execPrice := r.deps.Sender.ExecPrice(receipt)
		baseAmount := childAmount
		if order.QuoteAmount && execPrice > 0 {
			baseAmount = childAmount / execPrice
		}

		if order.Side == core.SideBuy {
			r.deps.Tracker.Open(order.Base, baseAmount, execPrice)
		} else {
			r.deps.Tracker.Reduce(order.Base, baseAmount)
		}

		if r.deps.Journal != nil {
			rec := portfolio.TradeRecord{
				ID:        uuid.NewString(),
				Symbol:    order.Base,
				Side:      string(order.Side),
				Amount:    baseAmount,
				Price:     execPrice,
				Reason:    "rebalance",
				Timestamp: r.deps.Clock.Now(),
			}
			if err := r.deps.Journal.RecordTrade(ctx, rec); err != nil {
				r.logger.Warn("Failed to record trade", "error", err)
			}
		}
	}
}

func (r *Rebalancer) persistPositions(ctx context.Context) {
	if r.deps.Journal == nil {
		return
	}
	if err := r.deps.Journal.SavePositions(ctx, r.deps.Tracker.Positions()); err != nil {
		r.logger.Warn("Failed to persist positions", "error", err)
	}
}

// referencePrice feeds the cycle-level slippage breaker. The executor
// re-checks impact per order against the same oracle.
func (r *Rebalancer) referencePrice(ctx context.Context, symbol string) float64 {
	if r.deps.Oracle != nil {
		return r.deps.Oracle.ReferencePrice(ctx, symbol, r.cfg.Reserve)
	}
	// Without an independent oracle the breaker compares the feed price
	// to itself and only freshness and volatility bite.
	price, _ := r.deps.Market.LastPrice(symbol)
	return price
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, guard.ErrStalePrice):
		return "stale_price"
	case errors.Is(err, guard.ErrExcessSlippage):
		return "slippage"
	case errors.Is(err, guard.ErrExcessVolatility):
		return "volatility"
	case errors.Is(err, guard.ErrRateLimited):
		return "rate_limited"
	default:
		return "other"
	}
}
