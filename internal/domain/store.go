package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SignalStore is the append-only signal ledger. Records are never updated
// after insert; MarkConsumed flips the single consumption flag and is the
// ledger half of the at-most-once execution guarantee.
type SignalStore interface {
	Insert(ctx context.Context, sig Signal) error
	GetByID(ctx context.Context, id string) (Signal, error)
	ListRecent(ctx context.Context, since time.Time, opts ListOpts) ([]Signal, error)
	ListTop(ctx context.Context, since time.Time, minScore float64, limit int) ([]Signal, error)

	// ListUnconsumed returns actionable (non-hold), unconsumed signals
	// emitted at or after since, oldest first.
	ListUnconsumed(ctx context.Context, since time.Time) ([]Signal, error)

	// MarkConsumed atomically claims a signal for execution. It returns
	// false when the signal was already consumed.
	MarkConsumed(ctx context.Context, id string) (bool, error)

	ListBefore(ctx context.Context, before time.Time) ([]Signal, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeStore persists the simulated trade ledger.
type TradeStore interface {
	List(ctx context.Context, opts ListOpts) ([]Trade, error)
	ListOpen(ctx context.Context) ([]Trade, error)
	ListByToken(ctx context.Context, tokenID string, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionStore is the position book: a token_id keyed read surface over the
// open positions. All writes go through PaperLedger so a trade and its
// position mutation land atomically.
type PositionStore interface {
	Get(ctx context.Context, tokenID string) (Position, error)
	List(ctx context.Context) ([]Position, error)
	Count(ctx context.Context) (int, error)
}

// PaperLedger applies one execution's trade append plus position mutation as
// a single atomic unit, so cancellation or failure mid-token never leaves a
// partial write.
type PaperLedger interface {
	// RecordBuy appends the buy trade and upserts the position it produced.
	RecordBuy(ctx context.Context, trade Trade, pos Position) error

	// RecordSell appends the sell trade, removes the token's position, and
	// marks the token's open buy trades closed.
	RecordSell(ctx context.Context, trade Trade) error
}

// WeightConfigStore holds the single current WeightConfig.
type WeightConfigStore interface {
	// Get returns the current config, or the defaults when none was ever
	// written.
	Get(ctx context.Context) (WeightConfig, error)
	Put(ctx context.Context, cfg WeightConfig) error
}

// SnapshotStore persists portfolio history snapshots.
type SnapshotStore interface {
	Insert(ctx context.Context, snap PortfolioSnapshot) error
	ListRange(ctx context.Context, opts ListOpts) ([]PortfolioSnapshot, error)
	ListBefore(ctx context.Context, before time.Time) ([]PortfolioSnapshot, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
