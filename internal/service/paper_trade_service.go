package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coinpilot/coinpilot/internal/domain"
	"github.com/coinpilot/coinpilot/internal/executor"
	"github.com/coinpilot/coinpilot/internal/notify"
)

// defaultSignalLookback bounds how far back ExecuteRecent drains unconsumed
// signals. Anything older is considered stale and left for the retention pass.
const defaultSignalLookback = 2 * time.Hour

// RunSummary reports one execution cycle's outcome.
type RunSummary struct {
	Evaluated time.Time     `json:"evaluated_at"`
	Signals   int           `json:"signals"`
	Executed  int           `json:"executed"`
	Skipped   int           `json:"skipped"`
	RiskExits int           `json:"risk_exits"`
	Duration  time.Duration `json:"duration"`
}

// PaperTradeService drives the executor: it drains pending signals, runs the
// stop-loss/take-profit sweep, and records each run in the audit log.
type PaperTradeService struct {
	exec      *executor.Executor
	signals   domain.SignalStore
	positions domain.PositionStore
	trades    domain.TradeStore
	prices    domain.PriceCache
	weights   domain.WeightConfigStore
	bus       domain.SignalBus
	audit     domain.AuditStore
	notifier  *notify.Notifier
	lookback  time.Duration
	logger    *slog.Logger
}

// NewPaperTradeService creates a PaperTradeService with all required
// dependencies. The notifier may be nil when no channels are configured.
func NewPaperTradeService(
	exec *executor.Executor,
	signals domain.SignalStore,
	positions domain.PositionStore,
	trades domain.TradeStore,
	prices domain.PriceCache,
	weights domain.WeightConfigStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *PaperTradeService {
	return &PaperTradeService{
		exec:      exec,
		signals:   signals,
		positions: positions,
		trades:    trades,
		prices:    prices,
		weights:   weights,
		bus:       bus,
		audit:     audit,
		notifier:  notifier,
		lookback:  defaultSignalLookback,
		logger:    logger.With(slog.String("component", "paper_trade_service")),
	}
}

// SetLookback changes how far back ExecuteRecent drains unconsumed signals.
// Must be called before the first run.
func (s *PaperTradeService) SetLookback(d time.Duration) {
	if d > 0 {
		s.lookback = d
	}
}

// ExecuteRecent drains unconsumed actionable signals from the lookback
// window, oldest first, then sweeps open positions for stop-loss and
// take-profit breaches. The weight configuration is snapshotted once so the
// whole run executes under one set of risk limits. A lock conflict on one
// token does not stop the run; the signal stays unconsumed for the next pass.
func (s *PaperTradeService) ExecuteRecent(ctx context.Context) (RunSummary, error) {
	started := time.Now().UTC()

	cfg, err := s.weights.Get(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("paper_trade_service: load weight config: %w", err)
	}

	pending, err := s.signals.ListUnconsumed(ctx, started.Add(-s.lookback))
	if err != nil {
		return RunSummary{}, fmt.Errorf("paper_trade_service: list pending signals: %w", err)
	}

	tokenIDs := make([]string, 0, len(pending))
	seen := make(map[string]bool, len(pending))
	for _, sig := range pending {
		if !seen[sig.TokenID] {
			seen[sig.TokenID] = true
			tokenIDs = append(tokenIDs, sig.TokenID)
		}
	}
	prices, err := s.prices.GetPrices(ctx, tokenIDs)
	if err != nil {
		return RunSummary{}, fmt.Errorf("paper_trade_service: load prices: %w", err)
	}

	summary := RunSummary{Evaluated: started, Signals: len(pending)}

	for _, sig := range pending {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		res, err := s.exec.Execute(ctx, sig, prices[sig.TokenID], cfg)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.WarnContext(ctx, "paper_trade_service: token busy, deferring signal",
					slog.String("signal_id", sig.ID),
					slog.String("token", sig.TokenID),
				)
				continue
			}
			return summary, fmt.Errorf("paper_trade_service: execute signal %s: %w", sig.ID, err)
		}

		if res.Executed() {
			summary.Executed++
			s.announceTrade(ctx, *res.Trade)
		} else {
			summary.Skipped++
		}
	}

	exits, err := s.riskSweep(ctx, cfg)
	if err != nil {
		return summary, err
	}
	summary.RiskExits = len(exits)
	for _, trade := range exits {
		s.announceTrade(ctx, trade)
	}

	summary.Duration = time.Since(started)
	s.recordRun(ctx, summary)
	return summary, nil
}

// ExecuteSignal runs a single stored signal at the current cached price,
// for the manual execution endpoint.
func (s *PaperTradeService) ExecuteSignal(ctx context.Context, signalID string) (executor.Execution, error) {
	sig, err := s.signals.GetByID(ctx, signalID)
	if err != nil {
		return executor.Execution{}, fmt.Errorf("paper_trade_service: load signal %s: %w", signalID, err)
	}

	cfg, err := s.weights.Get(ctx)
	if err != nil {
		return executor.Execution{}, fmt.Errorf("paper_trade_service: load weight config: %w", err)
	}

	price, _, err := s.prices.GetPrice(ctx, sig.TokenID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return executor.Execution{}, fmt.Errorf("paper_trade_service: load price %s: %w", sig.TokenID, err)
	}

	res, err := s.exec.Execute(ctx, sig, price, cfg)
	if err != nil {
		return executor.Execution{}, err
	}
	if res.Executed() {
		s.announceTrade(ctx, *res.Trade)
	}
	return res, nil
}

// riskSweep closes positions that breached their stop-loss or take-profit
// level at current cached prices.
func (s *PaperTradeService) riskSweep(ctx context.Context, cfg domain.WeightConfig) ([]domain.Trade, error) {
	held, err := s.positions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("paper_trade_service: list positions: %w", err)
	}
	if len(held) == 0 {
		return nil, nil
	}

	tokenIDs := make([]string, len(held))
	for i, pos := range held {
		tokenIDs[i] = pos.TokenID
	}
	prices, err := s.prices.GetPrices(ctx, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("paper_trade_service: load sweep prices: %w", err)
	}

	exits, err := s.exec.CheckRiskExits(ctx, prices, cfg)
	if err != nil {
		return exits, fmt.Errorf("paper_trade_service: risk sweep: %w", err)
	}
	return exits, nil
}

// Trades lists trades with pagination.
func (s *PaperTradeService) Trades(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("paper_trade_service: list trades: %w", err)
	}
	return trades, nil
}

// announceTrade publishes the trade on the bus and alerts the operator.
// Both are best effort.
func (s *PaperTradeService) announceTrade(ctx context.Context, trade domain.Trade) {
	if payload, err := json.Marshal(trade); err == nil {
		if err := s.bus.Publish(ctx, "trades", payload); err != nil {
			s.logger.WarnContext(ctx, "paper_trade_service: publish trade failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, "stream:trades", payload); err != nil {
			s.logger.WarnContext(ctx, "paper_trade_service: stream trade failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil {
		event := notify.EventTradeExecuted
		if trade.Trigger != domain.TriggerSignal {
			event = notify.EventRiskExit
		}
		title, message := notify.FormatTrade(trade)
		if err := s.notifier.Notify(ctx, event, title, message); err != nil {
			s.logger.WarnContext(ctx, "paper_trade_service: notify failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// recordRun writes the cycle outcome to the audit log and, when configured,
// sends the operator a summary.
func (s *PaperTradeService) recordRun(ctx context.Context, summary RunSummary) {
	if err := s.audit.Log(ctx, "cycle.run", map[string]any{
		"signals":     summary.Signals,
		"executed":    summary.Executed,
		"skipped":     summary.Skipped,
		"risk_exits":  summary.RiskExits,
		"duration_ms": summary.Duration.Milliseconds(),
	}); err != nil {
		s.logger.WarnContext(ctx, "paper_trade_service: audit run failed",
			slog.String("error", err.Error()),
		)
	}

	if s.notifier != nil && (summary.Executed > 0 || summary.RiskExits > 0) {
		title, message := notify.FormatCycleSummary(
			summary.Signals, summary.Executed, summary.Skipped, summary.RiskExits)
		_ = s.notifier.Notify(ctx, notify.EventCycleSummary, title, message)
	}

	s.logger.InfoContext(ctx, "paper_trade_service: cycle complete",
		slog.Int("signals", summary.Signals),
		slog.Int("executed", summary.Executed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("risk_exits", summary.RiskExits),
		slog.Duration("duration", summary.Duration),
	)
}
