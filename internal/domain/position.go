package domain

import "time"

// Position is the held quantity and average cost basis for one token. There
// is at most one Position per token; quantity never goes negative, and a
// quantity driven to zero removes the row. AvgCost changes only on buys.
type Position struct {
	TokenID     string    `json:"token_id"`
	Quantity    float64   `json:"quantity"`
	AvgCost     float64   `json:"avg_cost"`
	LastUpdated time.Time `json:"last_updated"`
}

// CostBasis returns quantity times average cost.
func (p Position) CostBasis() float64 {
	return p.Quantity * p.AvgCost
}
