package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func openPosition(entry float64) *Position {
	return &Position{Symbol: "WETH", Amount: 1, EntryPrice: entry, PeakPrice: entry}
}

func TestPositionStopLoss(t *testing.T) {
	p := openPosition(2000)
	rules := DefaultExitRules()

	assert.Equal(t, ExitNone, p.Update(1900, rules))
	assert.Equal(t, ExitStopLoss, p.Update(1860, rules)) // -7%
}

func TestPositionTakeProfit(t *testing.T) {
	p := openPosition(2000)
	rules := DefaultExitRules()

	assert.Equal(t, ExitNone, p.Update(2150, rules))
	assert.Equal(t, ExitTakeProfit, p.Update(2200, rules)) // +10%
}

func TestPositionTrailingStop(t *testing.T) {
	p := openPosition(2000)
	rules := DefaultExitRules()

	// Rally to +8%, then give back 5% from the peak.
	assert.Equal(t, ExitNone, p.Update(2160, rules))
	assert.Equal(t, 2160.0, p.PeakPrice)
	assert.Equal(t, ExitNone, p.Update(2100, rules))
	assert.Equal(t, ExitTrailing, p.Update(2052, rules))
}

func TestPositionTrailingNotArmedBelowEntry(t *testing.T) {
	p := openPosition(2000)
	rules := DefaultExitRules()

	// A 5% drop without ever being in profit is the stop loss's job.
	assert.Equal(t, ExitNone, p.Update(1950, rules))
	assert.Equal(t, ExitNone, p.Update(1900, rules))
}

func TestPositionIgnoresBadPrices(t *testing.T) {
	p := openPosition(2000)
	rules := DefaultExitRules()

	assert.Equal(t, ExitNone, p.Update(0, rules))
	assert.Equal(t, ExitNone, p.Update(-5, rules))
	assert.Equal(t, 2000.0, p.PeakPrice)
}
