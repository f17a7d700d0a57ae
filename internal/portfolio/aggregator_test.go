package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpilot/coinpilot/internal/domain"
)

func TestSummarize_RollsUpAcrossPositions(t *testing.T) {
	positions := []domain.Position{
		{TokenID: "BTC", Quantity: 2, AvgCost: 100},
		{TokenID: "ETH", Quantity: 10, AvgCost: 20},
	}
	prices := map[string]float64{"BTC": 150, "ETH": 18}

	summary, views := Summarize(positions, prices)

	require.Len(t, views, 2)
	assert.Equal(t, 2, summary.PositionCount)
	assert.InDelta(t, 480.0, summary.TotalValue, 1e-9)  // 300 + 180
	assert.InDelta(t, 400.0, summary.TotalCost, 1e-9)   // 200 + 200
	assert.InDelta(t, 80.0, summary.TotalPnL, 1e-9)     // 100 - 20
	assert.InDelta(t, 0.2, summary.TotalPnLPct, 1e-9)

	// Sorted by token ID.
	assert.Equal(t, "BTC", views[0].TokenID)
	assert.Equal(t, "ETH", views[1].TokenID)
	assert.InDelta(t, 100.0, views[0].PnL, 1e-9)
	assert.InDelta(t, 0.5, views[0].PnLPct, 1e-9)
	assert.InDelta(t, -20.0, views[1].PnL, 1e-9)
	assert.InDelta(t, -0.1, views[1].PnLPct, 1e-9)
}

func TestSummarize_MissingPriceValuesAtCost(t *testing.T) {
	positions := []domain.Position{{TokenID: "BTC", Quantity: 4, AvgCost: 50}}

	summary, views := Summarize(positions, nil)

	require.Len(t, views, 1)
	assert.InDelta(t, 50.0, views[0].CurrentPrice, 1e-9)
	assert.InDelta(t, 200.0, views[0].CurrentValue, 1e-9)
	assert.InDelta(t, 0.0, views[0].PnL, 1e-9)
	assert.InDelta(t, 0.0, summary.TotalPnLPct, 1e-9)
}

func TestSummarize_SkipsEmptyLots(t *testing.T) {
	positions := []domain.Position{
		{TokenID: "BTC", Quantity: 0, AvgCost: 100},
		{TokenID: "ETH", Quantity: 1, AvgCost: 10},
	}

	summary, views := Summarize(positions, map[string]float64{"ETH": 12})

	require.Len(t, views, 1)
	assert.Equal(t, "ETH", views[0].TokenID)
	assert.Equal(t, 1, summary.PositionCount)
}

func TestSummarize_EmptyPortfolio(t *testing.T) {
	summary, views := Summarize(nil, nil)
	assert.Empty(t, views)
	assert.Zero(t, summary.TotalValue)
	assert.Zero(t, summary.PositionCount)
}

func TestSnapshot_FreezesValuation(t *testing.T) {
	positions := []domain.Position{{TokenID: "BTC", Quantity: 2, AvgCost: 100}}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snap := Snapshot(positions, map[string]float64{"BTC": 150}, at)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, at, snap.TakenAt)
	assert.InDelta(t, 300.0, snap.Summary.TotalValue, 1e-9)
	require.Len(t, snap.Positions, 1)
}
