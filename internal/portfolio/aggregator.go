// Package portfolio derives live portfolio views from the position book and
// the latest known prices. All functions are pure; callers fetch positions
// and prices and pass them in.
package portfolio

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// Summarize values each position at its current price and rolls the results
// up into a portfolio summary. A token with no known price is valued at its
// cost basis, which makes its unrealized PnL read as zero rather than as a
// total loss. Views are ordered by token ID for stable output.
func Summarize(positions []domain.Position, prices map[string]float64) (domain.PortfolioSummary, []domain.PositionView) {
	views := make([]domain.PositionView, 0, len(positions))
	var summary domain.PortfolioSummary

	for _, pos := range positions {
		if pos.Quantity <= 0 {
			continue
		}

		price, ok := prices[pos.TokenID]
		if !ok || price <= 0 {
			price = pos.AvgCost
		}

		costBasis := pos.CostBasis()
		value := pos.Quantity * price
		pnl := value - costBasis
		pnlPct := 0.0
		if costBasis > 0 {
			pnlPct = pnl / costBasis
		}

		views = append(views, domain.PositionView{
			Position:     pos,
			CurrentPrice: price,
			CurrentValue: value,
			CostBasis:    costBasis,
			PnL:          pnl,
			PnLPct:       pnlPct,
		})

		summary.TotalValue += value
		summary.TotalCost += costBasis
		summary.TotalPnL += pnl
	}

	if summary.TotalCost > 0 {
		summary.TotalPnLPct = summary.TotalPnL / summary.TotalCost
	}
	summary.PositionCount = len(views)

	sort.Slice(views, func(i, j int) bool { return views[i].TokenID < views[j].TokenID })
	return summary, views
}

// Snapshot freezes the current valuation into a snapshot record.
func Snapshot(positions []domain.Position, prices map[string]float64, takenAt time.Time) domain.PortfolioSnapshot {
	summary, views := Summarize(positions, prices)
	return domain.PortfolioSnapshot{
		ID:        uuid.New().String(),
		Summary:   summary,
		Positions: views,
		TakenAt:   takenAt.UTC(),
	}
}
