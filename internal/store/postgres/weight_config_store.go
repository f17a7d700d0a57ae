package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// WeightConfigStore implements domain.WeightConfigStore using PostgreSQL.
// The table holds at most one row; Get falls back to the compiled-in
// defaults when nothing was ever written.
type WeightConfigStore struct {
	pool *pgxpool.Pool
}

// NewWeightConfigStore creates a new WeightConfigStore backed by the given connection pool.
func NewWeightConfigStore(pool *pgxpool.Pool) *WeightConfigStore {
	return &WeightConfigStore{pool: pool}
}

// Get returns the current weight configuration.
func (s *WeightConfigStore) Get(ctx context.Context) (domain.WeightConfig, error) {
	const query = `
		SELECT ml_weight, rule_weight, sentiment_weight, event_weight,
		       min_composite_score, max_positions, position_size_frac,
		       position_size_limit, stop_loss_pct, take_profit_pct,
		       initial_cash, min_trade_notional, updated_at
		FROM weight_config WHERE id`

	var cfg domain.WeightConfig
	err := s.pool.QueryRow(ctx, query).Scan(
		&cfg.MLWeight, &cfg.RuleWeight, &cfg.SentimentWeight, &cfg.EventWeight,
		&cfg.MinCompositeScore, &cfg.MaxPositions, &cfg.PositionSizeFrac,
		&cfg.PositionSizeLimit, &cfg.StopLossPct, &cfg.TakeProfitPct,
		&cfg.InitialCash, &cfg.MinTradeNotional, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DefaultWeightConfig(), nil
		}
		return domain.WeightConfig{}, fmt.Errorf("postgres: get weight config: %w", err)
	}
	return cfg, nil
}

// Put replaces the weight configuration.
func (s *WeightConfigStore) Put(ctx context.Context, cfg domain.WeightConfig) error {
	const query = `
		INSERT INTO weight_config (
			id, ml_weight, rule_weight, sentiment_weight, event_weight,
			min_composite_score, max_positions, position_size_frac,
			position_size_limit, stop_loss_pct, take_profit_pct,
			initial_cash, min_trade_notional, updated_at
		) VALUES (
			TRUE, $1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			ml_weight           = EXCLUDED.ml_weight,
			rule_weight         = EXCLUDED.rule_weight,
			sentiment_weight    = EXCLUDED.sentiment_weight,
			event_weight        = EXCLUDED.event_weight,
			min_composite_score = EXCLUDED.min_composite_score,
			max_positions       = EXCLUDED.max_positions,
			position_size_frac  = EXCLUDED.position_size_frac,
			position_size_limit = EXCLUDED.position_size_limit,
			stop_loss_pct       = EXCLUDED.stop_loss_pct,
			take_profit_pct     = EXCLUDED.take_profit_pct,
			initial_cash        = EXCLUDED.initial_cash,
			min_trade_notional  = EXCLUDED.min_trade_notional,
			updated_at          = NOW()`

	_, err := s.pool.Exec(ctx, query,
		cfg.MLWeight, cfg.RuleWeight, cfg.SentimentWeight, cfg.EventWeight,
		cfg.MinCompositeScore, cfg.MaxPositions, cfg.PositionSizeFrac,
		cfg.PositionSizeLimit, cfg.StopLossPct, cfg.TakeProfitPct,
		cfg.InitialCash, cfg.MinTradeNotional,
	)
	if err != nil {
		return fmt.Errorf("postgres: put weight config: %w", err)
	}
	return nil
}
