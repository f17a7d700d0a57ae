package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpilot/coinpilot/internal/domain"
)

func fp(v float64) *float64 { return &v }

func testConfig() domain.WeightConfig {
	cfg := domain.DefaultWeightConfig()
	cfg.MinCompositeScore = 0.85
	return cfg
}

func TestEvaluate_AllScoresPresent(t *testing.T) {
	scores := domain.SubScores{
		MLProbability:  fp(0.9),
		RuleScore:      fp(0.8),
		SentimentScore: fp(0.7),
		EventScore:     fp(0.6),
	}

	sig, err := Evaluate("BTC", scores, testConfig(), time.Now())
	require.NoError(t, err)

	// 0.4*0.9 + 0.3*0.8 + 0.2*0.7 + 0.1*0.6 = 0.80
	assert.InDelta(t, 0.80, sig.CompositeScore, 1e-9)
	assert.Equal(t, domain.ActionHold, sig.Action)
	assert.InDelta(t, 1.0, sig.WeightsUsed.Sum(), 1e-9)
	assert.Empty(t, sig.MissingScores)
	assert.False(t, sig.Degraded)
	assert.Equal(t, "BTC", sig.TokenID)
	assert.NotEmpty(t, sig.ID)
}

func TestEvaluate_RenormalizesMissingWeights(t *testing.T) {
	// Sentiment and event absent: ml and rule weights rescale to 4/7 and 3/7.
	scores := domain.SubScores{
		MLProbability: fp(0.9),
		RuleScore:     fp(0.9),
	}

	sig, err := Evaluate("ETH", scores, testConfig(), time.Now())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, sig.WeightsUsed.Sum(), 1e-9)
	assert.InDelta(t, 0.4/0.7, sig.WeightsUsed.ML, 1e-9)
	assert.InDelta(t, 0.3/0.7, sig.WeightsUsed.Rule, 1e-9)
	assert.Zero(t, sig.WeightsUsed.Sentiment)
	assert.Zero(t, sig.WeightsUsed.Event)

	// Available signals are not diluted: both inputs at 0.9 keep the blend at 0.9.
	assert.InDelta(t, 0.9, sig.CompositeScore, 1e-9)
	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.ElementsMatch(t, []string{"sentiment_score", "event_score"}, sig.MissingScores)
}

func TestEvaluate_SingleScoreTakesFullWeight(t *testing.T) {
	sig, err := Evaluate("SOL", domain.SubScores{EventScore: fp(0.5)}, testConfig(), time.Now())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, sig.WeightsUsed.Event, 1e-9)
	assert.InDelta(t, 0.5, sig.CompositeScore, 1e-9)
}

func TestEvaluate_AllMissingDegradesToHold(t *testing.T) {
	sig, err := Evaluate("ADA", domain.SubScores{}, testConfig(), time.Now())
	require.NoError(t, err)

	assert.True(t, sig.Degraded)
	assert.Equal(t, domain.ActionHold, sig.Action)
	assert.Zero(t, sig.Confidence)
	assert.Zero(t, sig.CompositeScore)
	assert.Len(t, sig.MissingScores, 4)
}

func TestEvaluate_InvalidWeightConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MLWeight, cfg.RuleWeight, cfg.SentimentWeight, cfg.EventWeight = 0, 0, 0, 0

	_, err := Evaluate("BTC", domain.SubScores{MLProbability: fp(0.9)}, cfg, time.Now())
	require.ErrorIs(t, err, domain.ErrInvalidWeightConfig)

	cfg = testConfig()
	cfg.RuleWeight = -0.2
	_, err = Evaluate("BTC", domain.SubScores{MLProbability: fp(0.9)}, cfg, time.Now())
	require.ErrorIs(t, err, domain.ErrInvalidWeightConfig)
}

func TestEvaluate_ThresholdSymmetry(t *testing.T) {
	cases := []struct {
		score float64
		want  domain.Action
	}{
		{0.86, domain.ActionBuy},
		{0.85, domain.ActionBuy},
		{0.84, domain.ActionHold},
		{0.0, domain.ActionHold},
		{-0.84, domain.ActionHold},
		{-0.85, domain.ActionSell},
		{-0.86, domain.ActionSell},
	}

	for _, tc := range cases {
		// All four sub-scores equal => composite equals that value for any
		// weight vector summing to one.
		scores := domain.SubScores{
			MLProbability:  fp(tc.score),
			RuleScore:      fp(tc.score),
			SentimentScore: fp(tc.score),
			EventScore:     fp(tc.score),
		}
		sig, err := Evaluate("BTC", scores, testConfig(), time.Now())
		require.NoError(t, err)
		assert.InDelta(t, tc.score, sig.CompositeScore, 1e-9)
		assert.Equalf(t, tc.want, sig.Action, "score %.2f", tc.score)
	}
}

func TestEvaluate_BearishRuleOverride(t *testing.T) {
	// A strongly bearish rule forces a sell even when the blend is neutral.
	scores := domain.SubScores{
		MLProbability:  fp(0.6),
		RuleScore:      fp(-0.95),
		SentimentScore: fp(0.5),
		EventScore:     fp(0.4),
	}

	sig, err := Evaluate("DOT", scores, testConfig(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSell, sig.Action)
}

func TestEvaluate_Deterministic(t *testing.T) {
	scores := domain.SubScores{
		MLProbability:  fp(0.91),
		RuleScore:      fp(0.72),
		SentimentScore: fp(-0.15),
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a, err := Evaluate("LINK", scores, testConfig(), now)
	require.NoError(t, err)
	b, err := Evaluate("LINK", scores, testConfig(), now)
	require.NoError(t, err)

	assert.Equal(t, a.CompositeScore, b.CompositeScore)
	assert.Equal(t, a.Action, b.Action)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.WeightsUsed, b.WeightsUsed)
}

func TestEvaluate_ConfidenceBounds(t *testing.T) {
	sig, err := Evaluate("BTC", domain.SubScores{
		MLProbability:  fp(1.0),
		RuleScore:      fp(1.0),
		SentimentScore: fp(1.0),
		EventScore:     fp(1.0),
	}, testConfig(), time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)

	sig, err = Evaluate("BTC", domain.SubScores{
		MLProbability: fp(-0.5),
	}, testConfig(), time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sig.Confidence, 1e-9)
	assert.GreaterOrEqual(t, sig.Confidence, 0.0)
	assert.LessOrEqual(t, sig.Confidence, 1.0)
}

func TestEvaluate_StampsAuditFields(t *testing.T) {
	cfg := testConfig()
	cfg.MinCompositeScore = 0.6

	sig, err := Evaluate("UNI", domain.SubScores{RuleScore: fp(0.7)}, cfg, time.Now())
	require.NoError(t, err)

	// weights_used and min_threshold replay the decision from the record alone.
	assert.InDelta(t, 1.0, sig.WeightsUsed.Rule, 1e-9)
	assert.Equal(t, 0.6, sig.MinThreshold)
	assert.Equal(t, domain.ActionBuy, sig.Action)
}
