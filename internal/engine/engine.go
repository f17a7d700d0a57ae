// Package engine implements the composite signal engine: a pure blend of the
// four per-token sub-scores into a single ranked trading decision. It has no
// side effects; persisting the resulting Signal is the caller's job.
package engine

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// maxScoreMagnitude is the largest composite magnitude a normalized input can
// produce: renormalized weights sum to 1 and sub-scores are normalized to
// [-1, 1] upstream.
const maxScoreMagnitude = 1.0

// Evaluate blends the sub-scores for one token under the given configuration
// and returns exactly one Signal. Missing sub-scores degrade the result (zero
// contribution, weight excluded from renormalization) but never fail the
// evaluation; the only error is an administratively broken WeightConfig.
func Evaluate(tokenID string, scores domain.SubScores, cfg domain.WeightConfig, now time.Time) (domain.Signal, error) {
	if err := cfg.Validate(); err != nil {
		return domain.Signal{}, err
	}

	sig := domain.Signal{
		ID:            uuid.New().String(),
		TokenID:       tokenID,
		MinThreshold:  cfg.MinCompositeScore,
		MissingScores: scores.Missing(),
		Timestamp:     now.UTC(),
	}

	if scores.AllMissing() {
		// Nothing to score. Emit a well-formed degraded hold rather than
		// fabricating a number.
		sig.Action = domain.ActionHold
		sig.Degraded = true
		sig.WeightsUsed = domain.Weights{}
		return sig, nil
	}

	weights := renormalize(cfg.Weights(), scores)
	sig.WeightsUsed = weights

	sig.MLProbability = value(scores.MLProbability)
	sig.RuleScore = value(scores.RuleScore)
	sig.SentimentScore = value(scores.SentimentScore)
	sig.EventScore = value(scores.EventScore)

	sig.CompositeScore = weights.ML*sig.MLProbability +
		weights.Rule*sig.RuleScore +
		weights.Sentiment*sig.SentimentScore +
		weights.Event*sig.EventScore

	sig.Action = decide(sig.CompositeScore, cfg.MinCompositeScore, scores.RuleScore)
	sig.Confidence = confidence(sig.CompositeScore)

	return sig, nil
}

// renormalize rescales the weights of the available sub-scores so they sum to
// 1.0, keeping available signals undiluted by missing ones. Weights of absent
// sub-scores drop to zero.
func renormalize(w domain.Weights, scores domain.SubScores) domain.Weights {
	if scores.MLProbability == nil {
		w.ML = 0
	}
	if scores.RuleScore == nil {
		w.Rule = 0
	}
	if scores.SentimentScore == nil {
		w.Sentiment = 0
	}
	if scores.EventScore == nil {
		w.Event = 0
	}

	sum := w.Sum()
	if sum <= 0 {
		// All weight sat on missing sub-scores.
		return domain.Weights{}
	}

	w.ML /= sum
	w.Rule /= sum
	w.Sentiment /= sum
	w.Event /= sum
	return w
}

// confidence maps the composite score's distance from zero onto [0, 1].
func confidence(score float64) float64 {
	c := math.Abs(score) / maxScoreMagnitude
	return math.Min(c, 1)
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
