package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// RetentionService archives aged ledger rows to cold storage and prunes them
// from the primary store. Pruning happens only after the archive upload
// succeeded; trades go first because they reference signals.
type RetentionService struct {
	archiver  domain.Archiver
	signals   domain.SignalStore
	trades    domain.TradeStore
	snapshots domain.SnapshotStore
	logger    *slog.Logger
}

// NewRetentionService creates a RetentionService with all required dependencies.
func NewRetentionService(
	archiver domain.Archiver,
	signals domain.SignalStore,
	trades domain.TradeStore,
	snapshots domain.SnapshotStore,
	logger *slog.Logger,
) *RetentionService {
	return &RetentionService{
		archiver:  archiver,
		signals:   signals,
		trades:    trades,
		snapshots: snapshots,
		logger:    logger.With(slog.String("component", "retention_service")),
	}
}

// RetentionResult reports how many records each step archived and pruned.
type RetentionResult struct {
	SignalsArchived   int64 `json:"signals_archived"`
	TradesArchived    int64 `json:"trades_archived"`
	SnapshotsArchived int64 `json:"snapshots_archived"`
	SignalsPruned     int64 `json:"signals_pruned"`
	TradesPruned      int64 `json:"trades_pruned"`
	SnapshotsPruned   int64 `json:"snapshots_pruned"`
}

// ArchiveAndPrune uploads everything older than the cutoff and then deletes
// it from the primary store.
func (s *RetentionService) ArchiveAndPrune(ctx context.Context, before time.Time) (RetentionResult, error) {
	var res RetentionResult
	var err error

	if res.TradesArchived, err = s.archiver.ArchiveTrades(ctx, before); err != nil {
		return res, fmt.Errorf("retention_service: archive trades: %w", err)
	}
	if res.SignalsArchived, err = s.archiver.ArchiveSignals(ctx, before); err != nil {
		return res, fmt.Errorf("retention_service: archive signals: %w", err)
	}
	if res.SnapshotsArchived, err = s.archiver.ArchiveSnapshots(ctx, before); err != nil {
		return res, fmt.Errorf("retention_service: archive snapshots: %w", err)
	}

	if res.TradesPruned, err = s.trades.DeleteBefore(ctx, before); err != nil {
		return res, fmt.Errorf("retention_service: prune trades: %w", err)
	}
	if res.SignalsPruned, err = s.signals.DeleteBefore(ctx, before); err != nil {
		return res, fmt.Errorf("retention_service: prune signals: %w", err)
	}
	if res.SnapshotsPruned, err = s.snapshots.DeleteBefore(ctx, before); err != nil {
		return res, fmt.Errorf("retention_service: prune snapshots: %w", err)
	}

	s.logger.InfoContext(ctx, "retention_service: archive and prune complete",
		slog.Time("before", before),
		slog.Int64("signals", res.SignalsArchived),
		slog.Int64("trades", res.TradesArchived),
		slog.Int64("snapshots", res.SnapshotsArchived),
	)
	return res, nil
}
