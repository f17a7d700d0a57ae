package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/coinpilot/coinpilot/internal/domain"
	"github.com/coinpilot/coinpilot/internal/portfolio"
)

// PortfolioService values the position book at cached prices and manages
// portfolio history snapshots.
type PortfolioService struct {
	positions domain.PositionStore
	prices    domain.PriceCache
	snapshots domain.SnapshotStore
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewPortfolioService creates a PortfolioService with all required dependencies.
func NewPortfolioService(
	positions domain.PositionStore,
	prices domain.PriceCache,
	snapshots domain.SnapshotStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PortfolioService {
	return &PortfolioService{
		positions: positions,
		prices:    prices,
		snapshots: snapshots,
		bus:       bus,
		logger:    logger.With(slog.String("component", "portfolio_service")),
	}
}

// Summary returns the current portfolio rollup plus per-position views.
func (s *PortfolioService) Summary(ctx context.Context) (domain.PortfolioSummary, []domain.PositionView, error) {
	positions, prices, err := s.load(ctx)
	if err != nil {
		return domain.PortfolioSummary{}, nil, err
	}

	summary, views := portfolio.Summarize(positions, prices)
	return summary, views, nil
}

// TakeSnapshot freezes the current valuation, persists it, and publishes it
// on the portfolio channel.
func (s *PortfolioService) TakeSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	positions, prices, err := s.load(ctx)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	snap := portfolio.Snapshot(positions, prices, time.Now())
	if err := s.snapshots.Insert(ctx, snap); err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("portfolio_service: insert snapshot: %w", err)
	}

	if payload, err := json.Marshal(snap); err == nil {
		if err := s.bus.Publish(ctx, "portfolio", payload); err != nil {
			s.logger.WarnContext(ctx, "portfolio_service: publish snapshot failed",
				slog.String("snapshot_id", snap.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "portfolio_service: snapshot taken",
		slog.String("snapshot_id", snap.ID),
		slog.Float64("total_value", snap.Summary.TotalValue),
		slog.Int("positions", snap.Summary.PositionCount),
	)
	return snap, nil
}

// History lists stored snapshots with pagination and time filtering.
func (s *PortfolioService) History(ctx context.Context, opts domain.ListOpts) ([]domain.PortfolioSnapshot, error) {
	snaps, err := s.snapshots.ListRange(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: list snapshots: %w", err)
	}
	return snaps, nil
}

func (s *PortfolioService) load(ctx context.Context) ([]domain.Position, map[string]float64, error) {
	positions, err := s.positions.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("portfolio_service: list positions: %w", err)
	}

	tokenIDs := make([]string, len(positions))
	for i, pos := range positions {
		tokenIDs[i] = pos.TokenID
	}
	prices, err := s.prices.GetPrices(ctx, tokenIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("portfolio_service: load prices: %w", err)
	}

	return positions, prices, nil
}
