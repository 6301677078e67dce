package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebalancer/internal/core"
)

func TestLimitTurnoverWithinBudgetIsUnchanged(t *testing.T) {
	current := core.Allocation{"USDC": 0.5, "WETH": 0.5}
	proposed := core.Allocation{"USDC": 0.45, "WETH": 0.55}

	out := LimitTurnover(current, proposed, 0.10)

	assert.InDelta(t, 0.45, out["USDC"], 1e-12)
	assert.InDelta(t, 0.55, out["WETH"], 1e-12)
}

func TestLimitTurnoverScalesBothSides(t *testing.T) {
	current := core.Allocation{"USDC": 0.5, "WETH": 0.5}
	proposed := core.Allocation{"USDC": 0.2, "WETH": 0.8}

	out := LimitTurnover(current, proposed, 0.10)

	// Desired moves are +-0.30; each side is scaled to the 0.10 budget.
	require.InDelta(t, 1.0, out.Sum(), 1e-12)
	assert.InDelta(t, 0.60, out["WETH"], 1e-9)
	assert.InDelta(t, 0.40, out["USDC"], 1e-9)
}

func TestLimitTurnoverAggregatesAcrossSymbols(t *testing.T) {
	current := core.Allocation{"USDC": 0.6, "WETH": 0.2, "WBTC": 0.2}
	proposed := core.Allocation{"USDC": 0.2, "WETH": 0.4, "WBTC": 0.4}

	out := LimitTurnover(current, proposed, 0.20)

	// Total up move is 0.4 across two symbols sharing one 0.20 budget.
	require.InDelta(t, 1.0, out.Sum(), 1e-12)
	assert.InDelta(t, 0.40, out["USDC"], 1e-9)
	assert.InDelta(t, 0.30, out["WETH"], 1e-9)
	assert.InDelta(t, 0.30, out["WBTC"], 1e-9)
}

func TestLimitTurnoverHandlesDisjointKeys(t *testing.T) {
	current := core.Allocation{"WETH": 1.0}
	proposed := core.Allocation{"WBTC": 1.0}

	out := LimitTurnover(current, proposed, 0.25)

	require.InDelta(t, 1.0, out.Sum(), 1e-12)
	assert.Greater(t, out["WETH"], out["WBTC"])
	assert.Greater(t, out["WBTC"], 0.0)
}

func TestLimitTurnoverZeroProposalFallsBackToEqualWeight(t *testing.T) {
	current := core.Allocation{"USDC": 0.5, "WETH": 0.5}

	out := LimitTurnover(current, core.Allocation{"USDC": 0, "WETH": -1}, 1.0)

	assert.InDelta(t, 0.5, out["USDC"], 1e-12)
	assert.InDelta(t, 0.5, out["WETH"], 1e-12)
}
