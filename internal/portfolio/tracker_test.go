package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebalancer/internal/mock"
	"rebalancer/pkg/logging"
)

func newTestTracker() *Tracker {
	clk := mock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewTracker(DefaultExitRules(), clk, logging.NewNopLogger())
}

func TestTrackerOpenAveragesEntries(t *testing.T) {
	tr := newTestTracker()

	tr.Open("WETH", 1.0, 2000)
	tr.Open("WETH", 1.0, 2200)

	p := tr.Positions()["WETH"]
	assert.Equal(t, 2.0, p.Amount)
	assert.InDelta(t, 2100, p.EntryPrice, 1e-9)
	assert.Equal(t, 2200.0, p.PeakPrice)
}

func TestTrackerReduceRemovesEmptyPositions(t *testing.T) {
	tr := newTestTracker()

	tr.Open("WETH", 2.0, 2000)
	tr.Reduce("WETH", 1.5)
	require.Contains(t, tr.Positions(), "WETH")

	tr.Reduce("WETH", 0.5)
	assert.NotContains(t, tr.Positions(), "WETH")
}

func TestTrackerEvaluateEmitsExitSignals(t *testing.T) {
	tr := newTestTracker()

	tr.Open("WETH", 1.0, 2000)
	tr.Open("WBTC", 0.1, 60000)

	signals := tr.Evaluate(map[string]float64{
		"WETH": 1800,  // -10%, past the stop
		"WBTC": 61000, // +1.7%, hold
	})

	require.Len(t, signals, 1)
	assert.Equal(t, "WETH", signals[0].Position.Symbol)
	assert.Equal(t, ExitStopLoss, signals[0].Reason)
}

func TestTrackerEvaluateSkipsUnpricedSymbols(t *testing.T) {
	tr := newTestTracker()

	tr.Open("WETH", 1.0, 2000)
	signals := tr.Evaluate(map[string]float64{})
	assert.Empty(t, signals)
}

func TestTrackerRestoreRoundTrip(t *testing.T) {
	tr := newTestTracker()
	tr.Open("WETH", 1.0, 2000)

	other := newTestTracker()
	other.Restore(tr.Positions())

	assert.Equal(t, tr.Positions(), other.Positions())
}
