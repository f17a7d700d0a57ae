package domain

import "time"

// PositionView is a Position enriched with live, price-dependent figures.
// CurrentValue, PnL and PnLPct are derived at read time; only the embedded
// Position fields are stored facts.
type PositionView struct {
	Position
	CurrentPrice float64 `json:"current_price"`
	CurrentValue float64 `json:"current_value"`
	CostBasis    float64 `json:"cost_basis"`
	PnL          float64 `json:"pnl"`
	PnLPct       float64 `json:"pnl_pct"`
}

// PortfolioSummary is the portfolio-level rollup across all held positions.
type PortfolioSummary struct {
	TotalValue    float64 `json:"total_value"`
	TotalCost     float64 `json:"total_cost"`
	TotalPnL      float64 `json:"total_pnl"`
	TotalPnLPct   float64 `json:"total_pnl_pct"`
	PositionCount int     `json:"position_count"`
}

// PortfolioSnapshot captures the summary and position list at one instant so
// the portfolio's history can be replayed later.
type PortfolioSnapshot struct {
	ID        string           `json:"id"`
	Summary   PortfolioSummary `json:"summary"`
	Positions []PositionView   `json:"positions"`
	TakenAt   time.Time        `json:"taken_at"`
}
