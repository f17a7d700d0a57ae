package domain

import "time"

// Action is the trading decision carried by a Signal.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// SubScores carries the per-token inputs for one evaluation cycle. A nil
// field means the upstream provider failed to deliver that score; the engine
// substitutes zero and renormalizes the remaining weights.
type SubScores struct {
	MLProbability  *float64 `json:"ml_probability"`
	RuleScore      *float64 `json:"rule_score"`
	SentimentScore *float64 `json:"sentiment_score"`
	EventScore     *float64 `json:"event_score"`
}

// AllMissing reports whether no sub-score was delivered at all.
func (s SubScores) AllMissing() bool {
	return s.MLProbability == nil && s.RuleScore == nil &&
		s.SentimentScore == nil && s.EventScore == nil
}

// Missing returns the names of the absent sub-scores, in stable order.
func (s SubScores) Missing() []string {
	var out []string
	if s.MLProbability == nil {
		out = append(out, "ml_probability")
	}
	if s.RuleScore == nil {
		out = append(out, "rule_score")
	}
	if s.SentimentScore == nil {
		out = append(out, "sentiment_score")
	}
	if s.EventScore == nil {
		out = append(out, "event_score")
	}
	return out
}

// Weights is a weight vector over the four sub-scores. The vector stored on a
// Signal is always post-renormalization, so a recorded decision can be
// replayed without consulting mutable configuration.
type Weights struct {
	ML        float64 `json:"ml_weight"`
	Rule      float64 `json:"rule_weight"`
	Sentiment float64 `json:"sentiment_weight"`
	Event     float64 `json:"event_weight"`
}

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.ML + w.Rule + w.Sentiment + w.Event
}

// Signal is one trading decision for one token. Signals are immutable once
// created; later evaluations supersede rather than update them. Consumed is
// the only field the ledger flips, exactly once, when the executor claims
// the signal.
type Signal struct {
	ID             string    `json:"id"`
	TokenID        string    `json:"token_id"`
	MLProbability  float64   `json:"ml_probability"`
	RuleScore      float64   `json:"rule_score"`
	SentimentScore float64   `json:"sentiment_score"`
	EventScore     float64   `json:"event_score"`
	CompositeScore float64   `json:"composite_score"`
	Action         Action    `json:"action"`
	Confidence     float64   `json:"confidence"`
	WeightsUsed    Weights   `json:"weights_used"`
	MinThreshold   float64   `json:"min_threshold"`
	MissingScores  []string  `json:"missing_scores,omitempty"`
	Degraded       bool      `json:"degraded,omitempty"`
	Consumed       bool      `json:"consumed"`
	Timestamp      time.Time `json:"timestamp"`
}

// Actionable reports whether the signal requests a position change.
func (s Signal) Actionable() bool {
	return s.Action == ActionBuy || s.Action == ActionSell
}
