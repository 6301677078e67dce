package feed

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"rebalancer/internal/core"
)

// maxHistory bounds the trailing price window per symbol. At one miniTicker
// update per second this spans roughly two minutes, enough for the
// volatility breaker without unbounded growth.
const maxHistory = 120

// PriceFeed consumes a combined miniTicker stream and serves the latest
// price plus trailing history per portfolio symbol.
type PriceFeed struct {
	client *WSClient
	clock  core.Clock
	logger core.Logger

	mu      sync.RWMutex
	tickers map[string]string // stream ticker (lowercase) -> portfolio symbol
	last    map[string]observation
	history map[string][]float64
}

type observation struct {
	price float64
	at    time.Time
}

// miniTicker is the payload of Binance's <symbol>@miniTicker stream inside
// a combined-stream envelope.
type miniTicker struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

// NewPriceFeed creates a feed for the given portfolio symbols. tickers maps
// each symbol to its stream ticker, e.g. WETH -> ETHUSDT.
func NewPriceFeed(wsBase string, tickers map[string]string, clock core.Clock, logger core.Logger) *PriceFeed {
	f := &PriceFeed{
		clock:   clock,
		logger:  logger.WithField("component", "price_feed"),
		tickers: make(map[string]string, len(tickers)),
		last:    make(map[string]observation),
		history: make(map[string][]float64),
	}

	streams := make([]string, 0, len(tickers))
	for symbol, ticker := range tickers {
		lower := strings.ToLower(ticker)
		f.tickers[strings.ToUpper(ticker)] = symbol
		streams = append(streams, lower+"@miniTicker")
	}

	url := wsBase + "/stream?streams=" + strings.Join(streams, "/")
	f.client = NewWSClient(url, f.handleMessage, logger)
	return f
}

// Start begins streaming in the background.
func (f *PriceFeed) Start() {
	f.client.Start()
}

// Stop closes the stream.
func (f *PriceFeed) Stop() {
	f.client.Stop()
}

// LastPrice returns the latest observed price and its arrival time.
// A symbol never observed returns zero values; freshness checks treat
// that as stale.
func (f *PriceFeed) LastPrice(symbol string) (float64, time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	obs := f.last[symbol]
	return obs.price, obs.at
}

// History returns a copy of the trailing price window, oldest first.
func (f *PriceFeed) History(symbol string) []float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]float64(nil), f.history[symbol]...)
}

// Record stores one observation directly, bypassing the stream. Used at
// startup to seed history from a REST snapshot.
func (f *PriceFeed) Record(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(symbol, price)
}

func (f *PriceFeed) handleMessage(message []byte) {
	var tick miniTicker
	if err := json.Unmarshal(message, &tick); err != nil {
		f.logger.Warn("Unparseable stream message", "error", err)
		return
	}
	symbol, ok := f.symbolFor(tick.Data.Symbol)
	if !ok {
		return
	}
	price, err := strconv.ParseFloat(tick.Data.Close, 64)
	if err != nil || price <= 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(symbol, price)
}

func (f *PriceFeed) symbolFor(ticker string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	symbol, ok := f.tickers[strings.ToUpper(ticker)]
	return symbol, ok
}

// record appends one observation. Caller holds mu.
func (f *PriceFeed) record(symbol string, price float64) {
	f.last[symbol] = observation{price: price, at: f.clock.Now()}
	h := append(f.history[symbol], price)
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	f.history[symbol] = h
}
