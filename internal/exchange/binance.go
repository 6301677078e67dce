package exchange

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"

	"rebalancer/internal/core"
)

// BinanceOracle serves independent reference prices from Binance spot
// tickers. It deliberately shares nothing with the trading venue: the
// whole point of the impact check is that the two feeds disagree when
// something is wrong on either side.
type BinanceOracle struct {
	client *binance.Client
	logger core.Logger

	mu    sync.Mutex
	cache map[string]cachedPrice
	ttl   time.Duration
}

type cachedPrice struct {
	price   float64
	fetched time.Time
}

// NewBinanceOracle creates an oracle using public market data endpoints;
// no API key is required.
func NewBinanceOracle(logger core.Logger) *BinanceOracle {
	return &BinanceOracle{
		client: binance.NewClient("", ""),
		logger: logger.WithField("component", "binance_oracle"),
		cache:  make(map[string]cachedPrice),
		ttl:    5 * time.Second,
	}
}

// ReferencePrice returns the base asset's price in quote units, 0 on any
// failure so dependent checks fail closed. Stablecoin pairs short-circuit
// to 1 since Binance has no markets for most of them.
func (o *BinanceOracle) ReferencePrice(ctx context.Context, base, quote string) float64 {
	baseTicker, baseOK := binanceSymbols[strings.ToUpper(base)]
	if isStable(base) && isStable(quote) {
		return 1
	}
	if !baseOK {
		o.logger.Warn("No reference ticker for symbol", "symbol", base)
		return 0
	}

	// Quote in USDT terms; USDC/USDT drift is well inside the impact
	// tolerance this feeds.
	symbol := baseTicker + "USDT"

	o.mu.Lock()
	if c, ok := o.cache[symbol]; ok && time.Since(c.fetched) < o.ttl {
		o.mu.Unlock()
		return c.price
	}
	o.mu.Unlock()

	prices, err := o.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil || len(prices) == 0 {
		o.logger.Warn("Reference price fetch failed", "symbol", symbol, "error", err)
		return 0
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil || price <= 0 {
		o.logger.Warn("Unparseable reference price", "symbol", symbol, "raw", prices[0].Price)
		return 0
	}

	o.mu.Lock()
	o.cache[symbol] = cachedPrice{price: price, fetched: time.Now()}
	o.mu.Unlock()
	return price
}

func isStable(symbol string) bool {
	switch strings.ToUpper(symbol) {
	case "USDC", "USDT", "DAI", "BUSD":
		return true
	}
	return false
}
