// Package executor implements the paper trading executor: it turns accepted
// signals into simulated orders against the position book. Long-only; a
// token's lifecycle is NO_POSITION -> LONG -> NO_POSITION.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// SkipReason explains why a signal produced no trade. Skips are expected
// outcomes, not errors; only configuration and lock conflicts surface as
// errors.
type SkipReason string

const (
	SkipNone              SkipReason = ""
	SkipHoldSignal        SkipReason = "hold_signal"
	SkipNoPriceData       SkipReason = "no_price_data"
	SkipBelowExecutionBar SkipReason = "below_execution_bar"
	SkipDuplicateSignal   SkipReason = "duplicate_signal"
	SkipAlreadyConsumed   SkipReason = "already_consumed"
	SkipMaxPositions      SkipReason = "max_positions_reached"
	SkipSizeLimit         SkipReason = "position_size_limit"
	SkipInsufficientCash  SkipReason = "insufficient_cash"
	SkipNoPositionToSell  SkipReason = "no_position_to_sell"
)

// Execution is the outcome of running one signal: either a Trade or the
// reason it was skipped.
type Execution struct {
	Trade   *domain.Trade
	Skipped SkipReason
}

// Executed reports whether a trade was produced.
func (e Execution) Executed() bool { return e.Trade != nil }

func skipped(reason SkipReason) Execution { return Execution{Skipped: reason} }

// Executor consumes signals one at a time, applies risk and idempotency
// checks, and records the resulting trade plus position mutation atomically
// through the paper ledger. Executions for the same token serialize through
// the lock manager; executions for different tokens may run concurrently.
type Executor struct {
	positions domain.PositionStore
	ledger    domain.PaperLedger
	signals   domain.SignalStore
	locks     domain.LockManager

	dedup         *Dedup
	minConfidence float64
	lockTTL       time.Duration
	logger        *slog.Logger
}

// New creates an Executor. minConfidence defaults to zero, which accepts any
// non-hold signal.
func New(
	positions domain.PositionStore,
	ledger domain.PaperLedger,
	signals domain.SignalStore,
	locks domain.LockManager,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		positions: positions,
		ledger:    ledger,
		signals:   signals,
		locks:     locks,
		dedup:     NewDedup(2 * time.Hour),
		lockTTL:   15 * time.Second,
		logger:    logger.With(slog.String("component", "executor")),
	}
}

// SetMinConfidence raises the execution bar: signals below it are skipped.
func (e *Executor) SetMinConfidence(c float64) { e.minConfidence = c }

// SetLockTTL changes the per-token lock TTL. Must be called before Execute.
func (e *Executor) SetLockTTL(ttl time.Duration) { e.lockTTL = ttl }

// Cleanup garbage-collects the in-process dedup window. Call periodically.
func (e *Executor) Cleanup() { e.dedup.Cleanup() }

// Execute runs one signal at the given current price under the given risk
// configuration. It returns at most one Trade per signal ID ever: replays are
// caught first by the in-process dedup window and then by the ledger's
// consumed flag. A held token lock fails the execution closed (no partial
// write) so the caller may retry.
func (e *Executor) Execute(ctx context.Context, sig domain.Signal, price float64, cfg domain.WeightConfig) (Execution, error) {
	log := e.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("token", sig.TokenID),
		slog.String("action", string(sig.Action)),
	)

	if err := cfg.Validate(); err != nil {
		return Execution{}, err
	}

	if sig.Action == domain.ActionHold {
		return skipped(SkipHoldSignal), nil
	}
	if price <= 0 {
		log.WarnContext(ctx, "executor: no usable price, skipping")
		return skipped(SkipNoPriceData), nil
	}
	if sig.Confidence < e.minConfidence {
		log.DebugContext(ctx, "executor: confidence below execution bar",
			slog.Float64("confidence", sig.Confidence),
			slog.Float64("bar", e.minConfidence),
		)
		return skipped(SkipBelowExecutionBar), nil
	}
	if e.dedup.IsDuplicate(sig.ID) {
		log.DebugContext(ctx, "executor: signal deduplicated")
		return skipped(SkipDuplicateSignal), nil
	}

	unlock, err := e.locks.Acquire(ctx, "exec:"+sig.TokenID, e.lockTTL)
	if err != nil {
		e.dedup.Forget(sig.ID)
		if errors.Is(err, domain.ErrLockHeld) {
			log.WarnContext(ctx, "executor: token locked by concurrent execution")
			return Execution{}, fmt.Errorf("executor: token %s: %w", sig.TokenID, err)
		}
		return Execution{}, fmt.Errorf("executor: acquire lock for %s: %w", sig.TokenID, err)
	}
	defer unlock()

	claimed, err := e.signals.MarkConsumed(ctx, sig.ID)
	if err != nil {
		e.dedup.Forget(sig.ID)
		return Execution{}, fmt.Errorf("executor: claim signal %s: %w", sig.ID, err)
	}
	if !claimed {
		log.DebugContext(ctx, "executor: signal already consumed")
		return skipped(SkipAlreadyConsumed), nil
	}

	switch sig.Action {
	case domain.ActionBuy:
		return e.buy(ctx, sig, price, cfg, log)
	case domain.ActionSell:
		return e.sell(ctx, sig, price, log)
	default:
		return skipped(SkipHoldSignal), nil
	}
}

// buy applies the risk checks, sizes the trade, and updates the weighted
// average cost of the token's lot.
func (e *Executor) buy(ctx context.Context, sig domain.Signal, price float64, cfg domain.WeightConfig, log *slog.Logger) (Execution, error) {
	pos, err := e.positions.Get(ctx, sig.TokenID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Execution{}, fmt.Errorf("executor: read position %s: %w", sig.TokenID, err)
	}

	if pos.Quantity <= 0 {
		count, err := e.positions.Count(ctx)
		if err != nil {
			return Execution{}, fmt.Errorf("executor: count positions: %w", err)
		}
		if count >= cfg.MaxPositions {
			log.InfoContext(ctx, "executor: buy skipped, no free position slot",
				slog.Int("open", count),
				slog.Int("max", cfg.MaxPositions),
			)
			return skipped(SkipMaxPositions), nil
		}
	}

	held, err := e.positions.List(ctx)
	if err != nil {
		return Execution{}, fmt.Errorf("executor: list positions: %w", err)
	}
	invested := 0.0
	for _, p := range held {
		invested += p.CostBasis()
	}
	available := cfg.InitialCash - invested

	room := cfg.PositionSizeLimit - pos.CostBasis()
	if room < cfg.MinTradeNotional {
		log.InfoContext(ctx, "executor: buy skipped, token at size limit",
			slog.Float64("cost_basis", pos.CostBasis()),
			slog.Float64("limit", cfg.PositionSizeLimit),
		)
		return skipped(SkipSizeLimit), nil
	}

	notional := math.Min(sizeNotional(available, sig.CompositeScore, cfg), room)
	if notional < cfg.MinTradeNotional || notional > available {
		log.InfoContext(ctx, "executor: buy skipped, insufficient cash",
			slog.Float64("notional", notional),
			slog.Float64("available", available),
		)
		return skipped(SkipInsufficientCash), nil
	}

	now := time.Now().UTC()
	quantity := notional / price
	newQuantity := pos.Quantity + quantity
	newAvgCost := (pos.Quantity*pos.AvgCost + quantity*price) / newQuantity

	signalID := sig.ID
	trade := domain.Trade{
		ID:             uuid.New().String(),
		SignalID:       &signalID,
		TokenID:        sig.TokenID,
		Action:         domain.ActionBuy,
		Quantity:       quantity,
		Price:          price,
		TotalCost:      notional,
		CompositeScore: sig.CompositeScore,
		Status:         domain.TradeStatusOpen,
		Trigger:        domain.TriggerSignal,
		Timestamp:      now,
	}
	newPos := domain.Position{
		TokenID:     sig.TokenID,
		Quantity:    newQuantity,
		AvgCost:     newAvgCost,
		LastUpdated: now,
	}

	if err := e.ledger.RecordBuy(ctx, trade, newPos); err != nil {
		return Execution{}, fmt.Errorf("executor: record buy %s: %w", sig.TokenID, err)
	}

	log.InfoContext(ctx, "executor: buy executed",
		slog.String("trade_id", trade.ID),
		slog.Float64("quantity", quantity),
		slog.Float64("price", price),
		slog.Float64("notional", notional),
		slog.Float64("avg_cost", newAvgCost),
	)
	return Execution{Trade: &trade}, nil
}

// sell exits the full lot. Selling with no position is a logged no-op, never
// a negative quantity.
func (e *Executor) sell(ctx context.Context, sig domain.Signal, price float64, log *slog.Logger) (Execution, error) {
	pos, err := e.positions.Get(ctx, sig.TokenID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.InfoContext(ctx, "executor: sell skipped, nothing held")
			return skipped(SkipNoPositionToSell), nil
		}
		return Execution{}, fmt.Errorf("executor: read position %s: %w", sig.TokenID, err)
	}
	if pos.Quantity <= 0 {
		return skipped(SkipNoPositionToSell), nil
	}

	signalID := sig.ID
	trade := closeTrade(pos, price, &signalID, sig.CompositeScore, domain.TriggerSignal)

	if err := e.ledger.RecordSell(ctx, trade); err != nil {
		return Execution{}, fmt.Errorf("executor: record sell %s: %w", sig.TokenID, err)
	}

	log.InfoContext(ctx, "executor: sell executed",
		slog.String("trade_id", trade.ID),
		slog.Float64("quantity", trade.Quantity),
		slog.Float64("price", price),
		slog.Float64("pnl", *trade.PnL),
	)
	return Execution{Trade: &trade}, nil
}

// CheckRiskExits sweeps the position book against current prices and closes
// every position whose return has breached the stop-loss or take-profit
// level. It runs independently of incoming signals; the resulting trades
// carry no signal reference, only the rule that fired. The sweep checks the
// context between tokens so a cancelled cycle stops cleanly with no partial
// trade.
func (e *Executor) CheckRiskExits(ctx context.Context, prices map[string]float64, cfg domain.WeightConfig) ([]domain.Trade, error) {
	held, err := e.positions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor: list positions for risk sweep: %w", err)
	}

	var trades []domain.Trade
	for _, pos := range held {
		select {
		case <-ctx.Done():
			return trades, ctx.Err()
		default:
		}

		price, ok := prices[pos.TokenID]
		if !ok || price <= 0 || pos.AvgCost <= 0 {
			continue
		}

		ret := (price - pos.AvgCost) / pos.AvgCost
		var trigger string
		switch {
		case cfg.StopLossPct > 0 && ret <= -cfg.StopLossPct:
			trigger = domain.TriggerStopLoss
		case cfg.TakeProfitPct > 0 && ret >= cfg.TakeProfitPct:
			trigger = domain.TriggerTakeProfit
		default:
			continue
		}

		unlock, err := e.locks.Acquire(ctx, "exec:"+pos.TokenID, e.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				// A concurrent execution owns the token; it will be swept
				// next cycle if the breach persists.
				continue
			}
			return trades, fmt.Errorf("executor: acquire lock for %s: %w", pos.TokenID, err)
		}

		// Re-read under the lock; the position may have been closed since
		// the sweep started.
		fresh, err := e.positions.Get(ctx, pos.TokenID)
		if err != nil || fresh.Quantity <= 0 {
			unlock()
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return trades, fmt.Errorf("executor: re-read position %s: %w", pos.TokenID, err)
			}
			continue
		}

		trade := closeTrade(fresh, price, nil, 0, trigger)
		err = e.ledger.RecordSell(ctx, trade)
		unlock()
		if err != nil {
			return trades, fmt.Errorf("executor: record risk exit %s: %w", pos.TokenID, err)
		}

		e.logger.InfoContext(ctx, "executor: risk exit executed",
			slog.String("token", pos.TokenID),
			slog.String("trigger", trigger),
			slog.Float64("price", price),
			slog.Float64("avg_cost", fresh.AvgCost),
			slog.Float64("pnl", *trade.PnL),
		)
		trades = append(trades, trade)
	}

	return trades, nil
}

// sizeNotional computes the buy notional: a fraction of available cash scaled
// by the signal strength (scores at or above 1.0 double the base stake).
func sizeNotional(available, compositeScore float64, cfg domain.WeightConfig) float64 {
	base := available * cfg.PositionSizeFrac
	multiplier := math.Min(compositeScore/0.5, 2.0)
	return math.Min(base*multiplier, cfg.PositionSizeLimit)
}

// closeTrade builds the full-exit sell trade for a position at the given
// price, including realized PnL against the stored cost basis.
func closeTrade(pos domain.Position, price float64, signalID *string, score float64, trigger string) domain.Trade {
	proceeds := pos.Quantity * price
	costBasis := pos.CostBasis()
	pnl := (price - pos.AvgCost) * pos.Quantity
	pnlPct := 0.0
	if costBasis > 0 {
		pnlPct = pnl / costBasis
	}

	return domain.Trade{
		ID:             uuid.New().String(),
		SignalID:       signalID,
		TokenID:        pos.TokenID,
		Action:         domain.ActionSell,
		Quantity:       pos.Quantity,
		Price:          price,
		TotalProceeds:  proceeds,
		PnL:            &pnl,
		PnLPct:         &pnlPct,
		CompositeScore: score,
		Status:         domain.TradeStatusClosed,
		Trigger:        trigger,
		Timestamp:      time.Now().UTC(),
	}
}
