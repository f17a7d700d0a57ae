package engine

import (
	"math"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// bearishRuleFloor is the rule-score level that forces a sell regardless of
// the blended score: a strongly bearish technical rule should not be diluted
// away by neutral sentiment or event inputs.
const bearishRuleFloor = -0.9

// band is one row of the action decision table: a closed score interval
// mapped to an action.
type band struct {
	min, max float64
	action   domain.Action
}

// decide maps a composite score onto an action through a symmetric threshold
// table. The bands are checked in order; anything between the thresholds
// falls through to hold.
func decide(score, threshold float64, ruleScore *float64) domain.Action {
	if ruleScore != nil && *ruleScore <= bearishRuleFloor {
		return domain.ActionSell
	}

	table := []band{
		{min: threshold, max: math.Inf(1), action: domain.ActionBuy},
		{min: math.Inf(-1), max: -threshold, action: domain.ActionSell},
	}
	for _, b := range table {
		if score >= b.min && score <= b.max {
			return b.action
		}
	}
	return domain.ActionHold
}
