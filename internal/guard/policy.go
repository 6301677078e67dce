package guard

import (
	"fmt"
	"time"
)

// Policy is the immutable per-order safety configuration, supplied at
// startup. There is no dynamic reconfiguration mid-cycle.
type Policy struct {
	MaxSlippagePct         float64       // tolerated |exec-quoted|/quoted, fraction
	MaxPriceAge            time.Duration // quotes older than this are stale
	MinNotionalQuote       float64       // reject orders below this quote-unit size
	MinBaseAmount          float64       // dust threshold for base-denominated orders
	MaxPriceImpactPct      float64       // tolerated |quoted-reference|/reference, fraction
	SplitThresholdQuote    float64       // split orders with notional above this
	SplitParts             int           // number of child orders when splitting
	MaxRetries             int           // send attempts per child order
	Backoff                time.Duration // fixed delay between attempts
	MaxConsecutiveFailures int           // failure breaker trip threshold
}

// DefaultPolicy returns conservative defaults suitable for a small
// competition account.
func DefaultPolicy() Policy {
	return Policy{
		MaxSlippagePct:         0.01,
		MaxPriceAge:            30 * time.Second,
		MinNotionalQuote:       10.0,
		MinBaseAmount:          1e-8,
		MaxPriceImpactPct:      0.02,
		SplitThresholdQuote:    2000.0,
		SplitParts:             3,
		MaxRetries:             3,
		Backoff:                1500 * time.Millisecond,
		MaxConsecutiveFailures: 3,
	}
}

// Validate checks the policy for internally inconsistent or unsafe values.
func (p Policy) Validate() error {
	if p.MaxSlippagePct <= 0 || p.MaxSlippagePct >= 1 {
		return fmt.Errorf("max_slippage_pct must be in (0,1), got %v", p.MaxSlippagePct)
	}
	if p.MaxPriceAge <= 0 {
		return fmt.Errorf("max_price_age must be positive, got %v", p.MaxPriceAge)
	}
	if p.MinNotionalQuote < 0 {
		return fmt.Errorf("min_notional_quote must be non-negative, got %v", p.MinNotionalQuote)
	}
	if p.MaxPriceImpactPct <= 0 || p.MaxPriceImpactPct >= 1 {
		return fmt.Errorf("max_price_impact_pct must be in (0,1), got %v", p.MaxPriceImpactPct)
	}
	if p.SplitParts < 1 {
		return fmt.Errorf("split_parts must be at least 1, got %d", p.SplitParts)
	}
	if p.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", p.MaxRetries)
	}
	if p.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("max_consecutive_failures must be at least 1, got %d", p.MaxConsecutiveFailures)
	}
	return nil
}
