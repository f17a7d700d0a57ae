// Package service orchestrates the engine, executor and stores into the
// operations exposed by the API and the cycle runner.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coinpilot/coinpilot/internal/domain"
	"github.com/coinpilot/coinpilot/internal/engine"
)

// evalConcurrency bounds the per-token evaluation fan-out.
const evalConcurrency = 16

// SignalService evaluates sub-scores into signals and records them.
type SignalService struct {
	signals domain.SignalStore
	weights domain.WeightConfigStore
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewSignalService creates a SignalService with all required dependencies.
func NewSignalService(
	signals domain.SignalStore,
	weights domain.WeightConfigStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *SignalService {
	return &SignalService{
		signals: signals,
		weights: weights,
		bus:     bus,
		logger:  logger.With(slog.String("component", "signal_service")),
	}
}

// EvaluateBatch runs the engine over every token's sub-scores under one
// configuration snapshot, persists the resulting signals, and publishes them
// on the bus. Tokens evaluate in parallel; the weight configuration is read
// once so every signal in the batch carries the same weights.
func (s *SignalService) EvaluateBatch(ctx context.Context, inputs map[string]domain.SubScores) ([]domain.Signal, error) {
	cfg, err := s.weights.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("signal_service: load weight config: %w", err)
	}

	now := time.Now().UTC()

	var mu sync.Mutex
	signals := make([]domain.Signal, 0, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evalConcurrency)

	for tokenID, scores := range inputs {
		tokenID, scores := tokenID, scores
		g.Go(func() error {
			sig, err := engine.Evaluate(tokenID, scores, cfg, now)
			if err != nil {
				return fmt.Errorf("signal_service: evaluate %s: %w", tokenID, err)
			}

			if err := s.signals.Insert(gctx, sig); err != nil {
				return fmt.Errorf("signal_service: insert signal %s: %w", sig.ID, err)
			}

			s.publish(gctx, sig)

			mu.Lock()
			signals = append(signals, sig)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "signal_service: batch evaluated",
		slog.Int("tokens", len(inputs)),
		slog.Int("signals", len(signals)),
	)
	return signals, nil
}

// publish fans the signal out on the bus. Delivery is best effort; a bus
// outage must not fail the evaluation.
func (s *SignalService) publish(ctx context.Context, sig domain.Signal) {
	payload, err := json.Marshal(sig)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, "signals", payload); err != nil {
		s.logger.WarnContext(ctx, "signal_service: publish failed",
			slog.String("signal_id", sig.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, "stream:signals", payload); err != nil {
		s.logger.WarnContext(ctx, "signal_service: stream append failed",
			slog.String("signal_id", sig.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Recent returns signals emitted within the window, newest first.
func (s *SignalService) Recent(ctx context.Context, window time.Duration, opts domain.ListOpts) ([]domain.Signal, error) {
	since := time.Now().UTC().Add(-window)
	signals, err := s.signals.ListRecent(ctx, since, opts)
	if err != nil {
		return nil, fmt.Errorf("signal_service: list recent: %w", err)
	}
	return signals, nil
}

// Top returns the strongest signals within the window ranked by absolute
// composite score.
func (s *SignalService) Top(ctx context.Context, window time.Duration, minScore float64, limit int) ([]domain.Signal, error) {
	since := time.Now().UTC().Add(-window)
	signals, err := s.signals.ListTop(ctx, since, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("signal_service: list top: %w", err)
	}
	return signals, nil
}
