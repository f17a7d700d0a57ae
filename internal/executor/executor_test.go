package executor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// fakeBook is an in-memory position book plus ledger. Writes mimic the
// postgres ledger: a trade append and its position mutation land together.
type fakeBook struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	trades    []domain.Trade
	failSell  error
}

func newFakeBook() *fakeBook {
	return &fakeBook{positions: make(map[string]domain.Position)}
}

func (b *fakeBook) Get(_ context.Context, tokenID string) (domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[tokenID]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (b *fakeBook) List(_ context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out, nil
}

func (b *fakeBook) Count(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions), nil
}

func (b *fakeBook) RecordBuy(_ context.Context, trade domain.Trade, pos domain.Position) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trades = append(b.trades, trade)
	b.positions[pos.TokenID] = pos
	return nil
}

func (b *fakeBook) RecordSell(_ context.Context, trade domain.Trade) error {
	if b.failSell != nil {
		return b.failSell
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trades = append(b.trades, trade)
	delete(b.positions, trade.TokenID)
	return nil
}

// fakeSignals implements only the consumption flag; the executor touches
// nothing else on the signal store.
type fakeSignals struct {
	mu       sync.Mutex
	consumed map[string]bool
}

func newFakeSignals() *fakeSignals {
	return &fakeSignals{consumed: make(map[string]bool)}
}

func (s *fakeSignals) MarkConsumed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed[id] {
		return false, nil
	}
	s.consumed[id] = true
	return true, nil
}

func (s *fakeSignals) Insert(context.Context, domain.Signal) error { return nil }
func (s *fakeSignals) GetByID(context.Context, string) (domain.Signal, error) {
	return domain.Signal{}, domain.ErrNotFound
}
func (s *fakeSignals) ListRecent(context.Context, time.Time, domain.ListOpts) ([]domain.Signal, error) {
	return nil, nil
}
func (s *fakeSignals) ListTop(context.Context, time.Time, float64, int) ([]domain.Signal, error) {
	return nil, nil
}
func (s *fakeSignals) ListUnconsumed(context.Context, time.Time) ([]domain.Signal, error) {
	return nil, nil
}
func (s *fakeSignals) ListBefore(context.Context, time.Time) ([]domain.Signal, error) {
	return nil, nil
}
func (s *fakeSignals) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

// fakeLocks hands out locks keyed by name; a held key returns ErrLockHeld.
type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocks() *fakeLocks { return &fakeLocks{held: make(map[string]bool)} }

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type fixture struct {
	exec    *Executor
	book    *fakeBook
	signals *fakeSignals
	locks   *fakeLocks
}

func newFixture() *fixture {
	book := newFakeBook()
	signals := newFakeSignals()
	locks := newFakeLocks()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		exec:    New(book, book, signals, locks, logger),
		book:    book,
		signals: signals,
		locks:   locks,
	}
}

func buySignal(id, token string, score float64) domain.Signal {
	return domain.Signal{
		ID:             id,
		TokenID:        token,
		CompositeScore: score,
		Action:         domain.ActionBuy,
		Confidence:     score,
		Timestamp:      time.Now().UTC(),
	}
}

func sellSignal(id, token string, score float64) domain.Signal {
	sig := buySignal(id, token, score)
	sig.Action = domain.ActionSell
	sig.CompositeScore = -score
	return sig
}

func TestExecute_BuyOpensPosition(t *testing.T) {
	f := newFixture()
	cfg := domain.DefaultWeightConfig()

	res, err := f.exec.Execute(context.Background(), buySignal("sig-1", "BTC", 0.9), 2.0, cfg)
	require.NoError(t, err)
	require.True(t, res.Executed())

	// base 1000 scaled by 1.8, clamped to the 1500 per-token limit.
	assert.InDelta(t, 1500.0, res.Trade.TotalCost, 1e-9)
	assert.InDelta(t, 750.0, res.Trade.Quantity, 1e-9)
	assert.Equal(t, domain.TradeStatusOpen, res.Trade.Status)
	assert.Equal(t, domain.TriggerSignal, res.Trade.Trigger)
	require.NotNil(t, res.Trade.SignalID)
	assert.Equal(t, "sig-1", *res.Trade.SignalID)

	pos, err := f.book.Get(context.Background(), "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 750.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 2.0, pos.AvgCost, 1e-9)
}

func TestExecute_BuyAveragesCost(t *testing.T) {
	f := newFixture()
	f.book.positions["BTC"] = domain.Position{TokenID: "BTC", Quantity: 10, AvgCost: 100}

	cfg := domain.DefaultWeightConfig()
	cfg.PositionSizeLimit = 1650 // 650 of room on top of the 1000 cost basis

	res, err := f.exec.Execute(context.Background(), buySignal("sig-2", "BTC", 0.9), 130, cfg)
	require.NoError(t, err)
	require.True(t, res.Executed())
	assert.InDelta(t, 650.0, res.Trade.TotalCost, 1e-9)
	assert.InDelta(t, 5.0, res.Trade.Quantity, 1e-9)

	pos, err := f.book.Get(context.Background(), "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 15.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 110.0, pos.AvgCost, 1e-9)
}

func TestExecute_SellClosesFullPosition(t *testing.T) {
	f := newFixture()
	f.book.positions["BTC"] = domain.Position{TokenID: "BTC", Quantity: 15, AvgCost: 110}

	res, err := f.exec.Execute(context.Background(), sellSignal("sig-3", "BTC", 0.9), 150, domain.DefaultWeightConfig())
	require.NoError(t, err)
	require.True(t, res.Executed())

	trade := res.Trade
	assert.Equal(t, domain.ActionSell, trade.Action)
	assert.Equal(t, domain.TradeStatusClosed, trade.Status)
	assert.InDelta(t, 15.0, trade.Quantity, 1e-9)
	assert.InDelta(t, 2250.0, trade.TotalProceeds, 1e-9)
	require.NotNil(t, trade.PnL)
	assert.InDelta(t, 600.0, *trade.PnL, 1e-9)
	require.NotNil(t, trade.PnLPct)
	assert.InDelta(t, 600.0/1650.0, *trade.PnLPct, 1e-9)

	_, err = f.book.Get(context.Background(), "BTC")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecute_SellWithoutPositionIsNoop(t *testing.T) {
	f := newFixture()

	res, err := f.exec.Execute(context.Background(), sellSignal("sig-4", "BTC", 0.9), 100, domain.DefaultWeightConfig())
	require.NoError(t, err)
	assert.False(t, res.Executed())
	assert.Equal(t, SkipNoPositionToSell, res.Skipped)
	assert.Empty(t, f.book.trades)
}

func TestExecute_SkipsHoldAndBadPrice(t *testing.T) {
	f := newFixture()
	cfg := domain.DefaultWeightConfig()

	hold := buySignal("sig-5", "BTC", 0.9)
	hold.Action = domain.ActionHold
	res, err := f.exec.Execute(context.Background(), hold, 100, cfg)
	require.NoError(t, err)
	assert.Equal(t, SkipHoldSignal, res.Skipped)

	res, err = f.exec.Execute(context.Background(), buySignal("sig-6", "BTC", 0.9), 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, SkipNoPriceData, res.Skipped)
}

func TestExecute_BelowExecutionBar(t *testing.T) {
	f := newFixture()
	f.exec.SetMinConfidence(0.5)

	sig := buySignal("sig-7", "BTC", 0.9)
	sig.Confidence = 0.3
	res, err := f.exec.Execute(context.Background(), sig, 100, domain.DefaultWeightConfig())
	require.NoError(t, err)
	assert.Equal(t, SkipBelowExecutionBar, res.Skipped)
}

func TestExecute_ReplayIsAtMostOnce(t *testing.T) {
	f := newFixture()
	cfg := domain.DefaultWeightConfig()
	sig := buySignal("sig-8", "BTC", 0.9)

	res, err := f.exec.Execute(context.Background(), sig, 2.0, cfg)
	require.NoError(t, err)
	require.True(t, res.Executed())

	res, err = f.exec.Execute(context.Background(), sig, 2.0, cfg)
	require.NoError(t, err)
	assert.Equal(t, SkipDuplicateSignal, res.Skipped)
	assert.Len(t, f.book.trades, 1)
}

func TestExecute_ConsumedFlagSurvivesRestart(t *testing.T) {
	f := newFixture()
	f.signals.consumed["sig-9"] = true

	res, err := f.exec.Execute(context.Background(), buySignal("sig-9", "BTC", 0.9), 2.0, domain.DefaultWeightConfig())
	require.NoError(t, err)
	assert.Equal(t, SkipAlreadyConsumed, res.Skipped)
	assert.Empty(t, f.book.trades)
}

func TestExecute_MaxPositionsBlocksNewTokenOnly(t *testing.T) {
	f := newFixture()
	f.book.positions["ETH"] = domain.Position{TokenID: "ETH", Quantity: 1, AvgCost: 500}

	cfg := domain.DefaultWeightConfig()
	cfg.MaxPositions = 1

	res, err := f.exec.Execute(context.Background(), buySignal("sig-10", "BTC", 0.9), 2.0, cfg)
	require.NoError(t, err)
	assert.Equal(t, SkipMaxPositions, res.Skipped)

	// Adding to a token already held does not need a free slot.
	res, err = f.exec.Execute(context.Background(), buySignal("sig-11", "ETH", 0.9), 500, cfg)
	require.NoError(t, err)
	assert.True(t, res.Executed())
}

func TestExecute_PositionSizeLimit(t *testing.T) {
	f := newFixture()
	f.book.positions["BTC"] = domain.Position{TokenID: "BTC", Quantity: 15, AvgCost: 100}

	cfg := domain.DefaultWeightConfig() // limit 1500, basis already 1500

	res, err := f.exec.Execute(context.Background(), buySignal("sig-12", "BTC", 0.9), 100, cfg)
	require.NoError(t, err)
	assert.Equal(t, SkipSizeLimit, res.Skipped)
}

func TestExecute_InsufficientCash(t *testing.T) {
	f := newFixture()

	cfg := domain.DefaultWeightConfig()
	cfg.InitialCash = 500 // base stake 50 * 1.8 = 90, under the 100 floor

	res, err := f.exec.Execute(context.Background(), buySignal("sig-13", "BTC", 0.9), 2.0, cfg)
	require.NoError(t, err)
	assert.Equal(t, SkipInsufficientCash, res.Skipped)
}

func TestExecute_LockHeldFailsClosed(t *testing.T) {
	f := newFixture()
	release, err := f.locks.Acquire(context.Background(), "exec:BTC", time.Minute)
	require.NoError(t, err)

	sig := buySignal("sig-14", "BTC", 0.9)
	_, err = f.exec.Execute(context.Background(), sig, 2.0, domain.DefaultWeightConfig())
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Empty(t, f.book.trades)

	// The failed attempt must not poison the dedup window.
	release()
	res, err := f.exec.Execute(context.Background(), sig, 2.0, domain.DefaultWeightConfig())
	require.NoError(t, err)
	assert.True(t, res.Executed())
}

func TestCheckRiskExits_StopLoss(t *testing.T) {
	f := newFixture()
	f.book.positions["BTC"] = domain.Position{TokenID: "BTC", Quantity: 10, AvgCost: 100}

	cfg := domain.DefaultWeightConfig() // stop loss 0.10

	trades, err := f.exec.CheckRiskExits(context.Background(), map[string]float64{"BTC": 89}, cfg)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	trade := trades[0]
	assert.Equal(t, domain.TriggerStopLoss, trade.Trigger)
	assert.Nil(t, trade.SignalID)
	require.NotNil(t, trade.PnL)
	assert.InDelta(t, -110.0, *trade.PnL, 1e-9)

	_, err = f.book.Get(context.Background(), "BTC")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckRiskExits_TakeProfit(t *testing.T) {
	f := newFixture()
	f.book.positions["BTC"] = domain.Position{TokenID: "BTC", Quantity: 10, AvgCost: 100}

	cfg := domain.DefaultWeightConfig() // take profit 0.25

	trades, err := f.exec.CheckRiskExits(context.Background(), map[string]float64{"BTC": 125}, cfg)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TriggerTakeProfit, trades[0].Trigger)
	assert.InDelta(t, 250.0, *trades[0].PnL, 1e-9)
}

func TestCheckRiskExits_InsideBandsUntouched(t *testing.T) {
	f := newFixture()
	f.book.positions["BTC"] = domain.Position{TokenID: "BTC", Quantity: 10, AvgCost: 100}

	trades, err := f.exec.CheckRiskExits(context.Background(), map[string]float64{"BTC": 105}, domain.DefaultWeightConfig())
	require.NoError(t, err)
	assert.Empty(t, trades)

	pos, err := f.book.Get(context.Background(), "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, pos.Quantity, 1e-9)
}

func TestCheckRiskExits_SkipsLockedToken(t *testing.T) {
	f := newFixture()
	f.book.positions["BTC"] = domain.Position{TokenID: "BTC", Quantity: 10, AvgCost: 100}
	_, err := f.locks.Acquire(context.Background(), "exec:BTC", time.Minute)
	require.NoError(t, err)

	trades, err := f.exec.CheckRiskExits(context.Background(), map[string]float64{"BTC": 50}, domain.DefaultWeightConfig())
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestCheckRiskExits_CancelledContextStopsSweep(t *testing.T) {
	f := newFixture()
	f.book.positions["BTC"] = domain.Position{TokenID: "BTC", Quantity: 10, AvgCost: 100}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.exec.CheckRiskExits(ctx, map[string]float64{"BTC": 50}, domain.DefaultWeightConfig())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.book.trades)
}
