package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebalancer/internal/core"
)

func newTestSanitizer() *Sanitizer {
	return NewSanitizer([]string{"USDC", "WETH", "WBTC"}, 0.45, 0.15, "USDC")
}

func TestSanitizeDropsUnknownAndClampsNegatives(t *testing.T) {
	s := newTestSanitizer()

	out := s.Sanitize(core.Allocation{
		"WETH": 0.5,
		"DOGE": 0.4,
		"WBTC": -0.2,
		"USDC": 0.3,
	})

	assert.NotContains(t, out, "DOGE")
	assert.GreaterOrEqual(t, out["WBTC"], 0.0)
	assert.InDelta(t, 1.0, out.Sum(), 1e-12)
}

func TestSanitizeOverweightProposal(t *testing.T) {
	s := newTestSanitizer()

	out := s.Sanitize(core.Allocation{
		"WETH": 0.9,
		"WBTC": 0.3,
		"DOGE": 0.5,
	})

	// Drop DOGE, normalize, cap WETH at 0.45, raise USDC to the 0.15
	// floor with the deficit split across WETH and WBTC, renormalize.
	require.InDelta(t, 1.0, out.Sum(), 1e-12)
	assert.InDelta(t, 0.375/0.7, out["WETH"], 1e-9)
	assert.InDelta(t, 0.175/0.7, out["WBTC"], 1e-9)
	assert.InDelta(t, 0.15/0.7, out["USDC"], 1e-9)
}

func TestSanitizeZeroSumFallsBackToEqualWeight(t *testing.T) {
	s := newTestSanitizer()

	for _, proposed := range []core.Allocation{
		nil,
		{},
		{"DOGE": 1.0},
		{"WETH": -0.5, "WBTC": 0},
	} {
		out := s.Sanitize(proposed)
		require.Len(t, out, 3)
		for _, sym := range []string{"USDC", "WETH", "WBTC"} {
			assert.InDelta(t, 1.0/3.0, out[sym], 1e-12)
		}
	}
}

func TestSanitizeSafeInputIsFixedPoint(t *testing.T) {
	s := newTestSanitizer()

	in := core.Allocation{"USDC": 0.2, "WETH": 0.4, "WBTC": 0.4}
	once := s.Sanitize(in)
	twice := s.Sanitize(once)

	for sym, w := range in {
		assert.InDelta(t, w, once[sym], 1e-12)
		assert.InDelta(t, w, twice[sym], 1e-12)
	}
}

func TestSanitizeAlwaysBoundedAndNormalized(t *testing.T) {
	s := newTestSanitizer()

	inputs := []core.Allocation{
		{"WETH": 100, "WBTC": 1},
		{"USDC": 0.01, "WETH": 5},
		{"WETH": 0.5, "WBTC": 0.5, "USDC": 0.5},
	}
	for _, in := range inputs {
		out := s.Sanitize(in)
		assert.InDelta(t, 1.0, out.Sum(), 1e-12)
		assert.GreaterOrEqual(t, out["USDC"], 0.15-1e-12)
		for sym, w := range out {
			assert.GreaterOrEqual(t, w, 0.0, sym)
		}
	}
}
