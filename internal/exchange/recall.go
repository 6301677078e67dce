package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"rebalancer/internal/core"
	"rebalancer/pkg/httpclient"
)

// RecallClient adapts the Recall competition REST API to the quote, order
// and balance interfaces. Recall is custodial: it holds the competition
// funds, so allowances are the held balance itself.
type RecallClient struct {
	http    *httpclient.Client
	limiter *rate.Limiter
	logger  core.Logger
}

// apiKeySigner attaches the bearer token the API expects.
type apiKeySigner struct {
	key string
}

func (s *apiKeySigner) SignRequest(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+s.key)
	return nil
}

// NewRecallClient creates a venue client. The rate limiter caps request
// throughput below the API's documented limit so bursts of child orders
// never trip the server side.
func NewRecallClient(baseURL, apiKey string, logger core.Logger) *RecallClient {
	return &RecallClient{
		http:    httpclient.NewClient(baseURL, 15*time.Second, &apiKeySigner{key: apiKey}),
		limiter: rate.NewLimiter(rate.Every(350*time.Millisecond), 3),
		logger:  logger.WithField("component", "recall_client"),
	}
}

type quoteResponse struct {
	FromToken  string  `json:"fromToken"`
	ToToken    string  `json:"toToken"`
	FromAmount float64 `json:"fromAmount"`
	ToAmount   float64 `json:"toAmount"`
	Price      float64 `json:"price"`
	Slippage   float64 `json:"slippage"`
}

// GetBestQuote fetches an executable quote for the order's pair and size.
// The returned price is always base-in-quote regardless of order side.
func (c *RecallClient) GetBestQuote(ctx context.Context, order core.Order) (core.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return core.Quote{}, err
	}

	from, to, amount := tradeLegs(order)
	body, err := c.http.Get(ctx, "/api/trade/quote", map[string]string{
		"fromToken": from,
		"toToken":   to,
		"amount":    amount,
	})
	if err != nil {
		return core.Quote{}, fmt.Errorf("quote request: %w", err)
	}

	var qr quoteResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return core.Quote{}, fmt.Errorf("decoding quote: %w", err)
	}

	price := qr.Price
	if price <= 0 && qr.FromAmount > 0 && qr.ToAmount > 0 {
		// Older API revisions omit the price field.
		if order.Side == core.SideBuy {
			price = qr.FromAmount / qr.ToAmount
		} else {
			price = qr.ToAmount / qr.FromAmount
		}
	}

	return core.Quote{
		Price:            price,
		Timestamp:        time.Now(),
		Venue:            "recall",
		ExpectedSlippage: qr.Slippage,
		Liquidity:        qr.ToAmount,
	}, nil
}

type tradeRequest struct {
	FromToken string `json:"fromToken"`
	ToToken   string `json:"toToken"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}

// SendOrder executes a market swap. The response comes back as an opaque
// receipt so schema drift on the venue side stays out of the guard logic.
func (c *RecallClient) SendOrder(ctx context.Context, order core.Order) (core.Receipt, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	from, to, amount := tradeLegs(order)
	c.logger.Info("Submitting trade",
		"from", from,
		"to", to,
		"amount", amount,
		"side", order.Side)

	body, err := c.http.Post(ctx, "/api/trade/execute", tradeRequest{
		FromToken: from,
		ToToken:   to,
		Amount:    amount,
		Reason:    "scheduled portfolio rebalance",
	})
	if err != nil {
		return nil, fmt.Errorf("trade execution: %w", err)
	}

	var receipt core.Receipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, fmt.Errorf("decoding trade receipt: %w", err)
	}
	return receipt, nil
}

// ExecPrice extracts the realized base-in-quote price from a receipt.
// Returns 0 when the receipt has no usable price.
func (c *RecallClient) ExecPrice(receipt core.Receipt) float64 {
	if receipt == nil {
		return 0
	}
	tx, ok := receipt["transaction"].(map[string]interface{})
	if !ok {
		tx = receipt
	}
	if p, ok := tx["price"].(float64); ok && p > 0 {
		return p
	}
	return 0
}

type balanceResponse struct {
	Balances []struct {
		Symbol string  `json:"symbol"`
		Amount float64 `json:"amount"`
	} `json:"balances"`
}

// Balance returns the spendable amount of one asset, 0 on any failure so
// sufficiency checks upstream fail closed.
func (c *RecallClient) Balance(ctx context.Context, asset string) float64 {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0
	}
	body, err := c.http.Get(ctx, "/api/agent/balances", nil)
	if err != nil {
		c.logger.Warn("Balance lookup failed", "asset", asset, "error", err)
		return 0
	}
	var br balanceResponse
	if err := json.Unmarshal(body, &br); err != nil {
		c.logger.Warn("Balance decode failed", "error", err)
		return 0
	}
	for _, b := range br.Balances {
		if b.Symbol == asset {
			return b.Amount
		}
	}
	return 0
}

// Allowance for a custodial venue is the held balance: funds on the venue
// are implicitly approved for its own router.
func (c *RecallClient) Allowance(ctx context.Context, asset, spender string) float64 {
	return c.Balance(ctx, asset)
}

// CheckHealth probes the venue's health endpoint.
func (c *RecallClient) CheckHealth(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.http.Get(ctx, "/api/health", nil); err != nil {
		return fmt.Errorf("venue health check: %w", err)
	}
	return nil
}

// tradeLegs resolves the from/to token addresses and the send amount for
// an order. Buys spend the quote asset, sells spend the base asset; the
// amount string is exact decimal, never float-formatted.
func tradeLegs(order core.Order) (from, to, amount string) {
	base := TokenAddress(order.Base)
	quote := TokenAddress(order.Quote)
	amt := decimal.NewFromFloat(order.Amount).String()
	if order.Side == core.SideBuy {
		return quote, base, amt
	}
	return base, quote, amt
}
