package domain

import (
	"fmt"
	"time"
)

// WeightConfig is the admin-editable weighting scheme and risk parameter set.
// It is read as an immutable snapshot at the start of every evaluation or
// execution cycle; the admin mutation path writes a whole new row, never
// mutates mid-cycle.
type WeightConfig struct {
	MLWeight        float64 `json:"ml_weight"`
	RuleWeight      float64 `json:"rule_weight"`
	SentimentWeight float64 `json:"sentiment_weight"`
	EventWeight     float64 `json:"event_weight"`

	// MinCompositeScore is the symmetric action threshold: buy at or above
	// it, sell at or below its negation.
	MinCompositeScore float64 `json:"min_composite_score"`

	MaxPositions int `json:"max_positions"`

	// PositionSizeFrac sizes a single buy as a fraction of available cash.
	PositionSizeFrac float64 `json:"position_size_frac"`

	// PositionSizeLimit caps the total cost basis held in one token, in
	// quote currency.
	PositionSizeLimit float64 `json:"position_size_limit"`

	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`

	InitialCash      float64 `json:"initial_cash"`
	MinTradeNotional float64 `json:"min_trade_notional"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultWeightConfig returns the stock configuration used until an admin
// writes their own.
func DefaultWeightConfig() WeightConfig {
	return WeightConfig{
		MLWeight:          0.4,
		RuleWeight:        0.3,
		SentimentWeight:   0.2,
		EventWeight:       0.1,
		MinCompositeScore: 0.85,
		MaxPositions:      8,
		PositionSizeFrac:  0.10,
		PositionSizeLimit: 1500,
		StopLossPct:       0.10,
		TakeProfitPct:     0.25,
		InitialCash:       10000,
		MinTradeNotional:  100,
	}
}

// Weights returns the configured (pre-renormalization) weight vector.
func (c WeightConfig) Weights() Weights {
	return Weights{
		ML:        c.MLWeight,
		Rule:      c.RuleWeight,
		Sentiment: c.SentimentWeight,
		Event:     c.EventWeight,
	}
}

// Validate rejects administratively broken configurations. A config whose
// weights cannot be renormalized is a fatal error, distinct from transient
// data absence.
func (c WeightConfig) Validate() error {
	for name, w := range map[string]float64{
		"ml_weight":        c.MLWeight,
		"rule_weight":      c.RuleWeight,
		"sentiment_weight": c.SentimentWeight,
		"event_weight":     c.EventWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%w: %s is negative (%.4f)", ErrInvalidWeightConfig, name, w)
		}
		if w > 1 {
			return fmt.Errorf("%w: %s exceeds 1 (%.4f)", ErrInvalidWeightConfig, name, w)
		}
	}
	if c.Weights().Sum() <= 0 {
		return fmt.Errorf("%w: weights sum to zero", ErrInvalidWeightConfig)
	}
	if c.MinCompositeScore <= 0 || c.MinCompositeScore > 1 {
		return fmt.Errorf("%w: min_composite_score %.4f outside (0,1]", ErrInvalidWeightConfig, c.MinCompositeScore)
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("%w: max_positions must be positive", ErrInvalidWeightConfig)
	}
	if c.PositionSizeFrac <= 0 || c.PositionSizeFrac > 1 {
		return fmt.Errorf("%w: position_size_frac %.4f outside (0,1]", ErrInvalidWeightConfig, c.PositionSizeFrac)
	}
	if c.PositionSizeLimit <= 0 {
		return fmt.Errorf("%w: position_size_limit must be positive", ErrInvalidWeightConfig)
	}
	if c.StopLossPct < 0 || c.TakeProfitPct < 0 {
		return fmt.Errorf("%w: stop/take percentages cannot be negative", ErrInvalidWeightConfig)
	}
	if c.InitialCash <= 0 {
		return fmt.Errorf("%w: initial_cash must be positive", ErrInvalidWeightConfig)
	}
	return nil
}
