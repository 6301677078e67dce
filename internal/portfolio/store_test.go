package portfolio

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "portfolio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStorePositionsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	positions := map[string]Position{
		"WETH": {Symbol: "WETH", Amount: 1.5, EntryPrice: 2000, PeakPrice: 2100, OpenedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		"WBTC": {Symbol: "WBTC", Amount: 0.1, EntryPrice: 60000, PeakPrice: 60000, OpenedAt: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, store.SavePositions(ctx, positions))

	loaded, err := store.LoadPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, positions, loaded)
}

func TestStoreLoadWithoutSaveIsEmpty(t *testing.T) {
	store := newTestStore(t)

	loaded, err := store.LoadPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStoreSaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePositions(ctx, map[string]Position{
		"WETH": {Symbol: "WETH", Amount: 1, EntryPrice: 2000, PeakPrice: 2000},
	}))
	require.NoError(t, store.SavePositions(ctx, map[string]Position{
		"WBTC": {Symbol: "WBTC", Amount: 0.2, EntryPrice: 58000, PeakPrice: 59000},
	}))

	loaded, err := store.LoadPositions(ctx)
	require.NoError(t, err)
	assert.NotContains(t, loaded, "WETH")
	assert.Contains(t, loaded, "WBTC")
}

func TestStoreTradeAuditTrail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, sym := range []string{"WETH", "WBTC", "WETH"} {
		require.NoError(t, store.RecordTrade(ctx, TradeRecord{
			ID:        fmt.Sprintf("trade-%d", i),
			Symbol:    sym,
			Side:      "buy",
			Amount:    1,
			Price:     2000,
			Reason:    "rebalance",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	trades, err := store.RecentTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	// Newest first.
	assert.Equal(t, "WETH", trades[0].Symbol)
	assert.True(t, trades[0].Timestamp.After(trades[1].Timestamp))
}
