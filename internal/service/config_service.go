package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// ConfigService reads and mutates the weight configuration. Updates are
// validated before they land and every change is audited.
type ConfigService struct {
	weights domain.WeightConfigStore
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewConfigService creates a ConfigService with all required dependencies.
func NewConfigService(
	weights domain.WeightConfigStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ConfigService {
	return &ConfigService{
		weights: weights,
		audit:   audit,
		logger:  logger.With(slog.String("component", "config_service")),
	}
}

// Get returns the current weight configuration.
func (s *ConfigService) Get(ctx context.Context) (domain.WeightConfig, error) {
	cfg, err := s.weights.Get(ctx)
	if err != nil {
		return domain.WeightConfig{}, fmt.Errorf("config_service: get: %w", err)
	}
	return cfg, nil
}

// Update validates and stores a new weight configuration. Running cycles keep
// the snapshot they started with; the new configuration applies from the next
// cycle.
func (s *ConfigService) Update(ctx context.Context, cfg domain.WeightConfig) (domain.WeightConfig, error) {
	if err := cfg.Validate(); err != nil {
		return domain.WeightConfig{}, fmt.Errorf("config_service: update: %w", err)
	}

	prev, err := s.weights.Get(ctx)
	if err != nil {
		return domain.WeightConfig{}, fmt.Errorf("config_service: load previous: %w", err)
	}

	if err := s.weights.Put(ctx, cfg); err != nil {
		return domain.WeightConfig{}, fmt.Errorf("config_service: put: %w", err)
	}

	if err := s.audit.Log(ctx, "config.updated", map[string]any{
		"previous": configDetail(prev),
		"current":  configDetail(cfg),
	}); err != nil {
		s.logger.WarnContext(ctx, "config_service: audit failed",
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "config_service: weight config updated",
		slog.Float64("ml_weight", cfg.MLWeight),
		slog.Float64("rule_weight", cfg.RuleWeight),
		slog.Float64("sentiment_weight", cfg.SentimentWeight),
		slog.Float64("event_weight", cfg.EventWeight),
		slog.Float64("min_composite_score", cfg.MinCompositeScore),
	)

	stored, err := s.weights.Get(ctx)
	if err != nil {
		return domain.WeightConfig{}, fmt.Errorf("config_service: reload: %w", err)
	}
	return stored, nil
}

func configDetail(cfg domain.WeightConfig) map[string]any {
	return map[string]any{
		"ml_weight":           cfg.MLWeight,
		"rule_weight":         cfg.RuleWeight,
		"sentiment_weight":    cfg.SentimentWeight,
		"event_weight":        cfg.EventWeight,
		"min_composite_score": cfg.MinCompositeScore,
		"max_positions":       cfg.MaxPositions,
		"position_size_frac":  cfg.PositionSizeFrac,
		"position_size_limit": cfg.PositionSizeLimit,
		"stop_loss_pct":       cfg.StopLossPct,
		"take_profit_pct":     cfg.TakeProfitPct,
		"initial_cash":        cfg.InitialCash,
		"min_trade_notional":  cfg.MinTradeNotional,
	}
}
