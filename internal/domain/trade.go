package domain

import "time"

// TradeStatus tracks whether a trade's lot is still held.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// Trade triggers beyond an ordinary signal: risk exits carry the rule that
// fired instead of a signal reference.
const (
	TriggerSignal     = "signal"
	TriggerStopLoss   = "stop_loss"
	TriggerTakeProfit = "take_profit"
)

// Trade is one simulated order execution. A buy opens (or adds to) the
// token's lot and starts open; a sell always exits the full lot, carries the
// realized PnL, and closes the token's open buys. SignalID is nil for
// risk-triggered closes (stop-loss / take-profit).
type Trade struct {
	ID             string      `json:"id"`
	SignalID       *string     `json:"signal_id"`
	TokenID        string      `json:"token_id"`
	Action         Action      `json:"action"`
	Quantity       float64     `json:"quantity"`
	Price          float64     `json:"price"`
	TotalCost      float64     `json:"total_cost,omitempty"`
	TotalProceeds  float64     `json:"total_proceeds,omitempty"`
	PnL            *float64    `json:"pnl,omitempty"`
	PnLPct         *float64    `json:"pnl_pct,omitempty"`
	CompositeScore float64     `json:"composite_score"`
	Status         TradeStatus `json:"status"`
	Trigger        string      `json:"trigger"`
	Timestamp      time.Time   `json:"timestamp"`
}
