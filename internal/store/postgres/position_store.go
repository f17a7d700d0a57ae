package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// PositionStore implements domain.PositionStore and domain.PaperLedger using
// PostgreSQL. Reads go straight to the positions table; writes run the trade
// append and the position mutation in one transaction.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `token_id, quantity, avg_cost, last_updated`

// Get retrieves the position for one token.
func (s *PositionStore) Get(ctx context.Context, tokenID string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE token_id = $1`, tokenID)

	var p domain.Position
	err := row.Scan(&p.TokenID, &p.Quantity, &p.AvgCost, &p.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", tokenID, err)
	}
	return p, nil
}

// List returns all open positions ordered by token ID.
func (s *PositionStore) List(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE quantity > 0 ORDER BY token_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.TokenID, &p.Quantity, &p.AvgCost, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

// Count returns the number of open positions.
func (s *PositionStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM positions WHERE quantity > 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count positions: %w", err)
	}
	return count, nil
}

const insertTradeQuery = `
	INSERT INTO trades (
		id, signal_id, token_id, action, quantity, price,
		total_cost, total_proceeds, pnl, pnl_pct, composite_score,
		status, trigger_rule, ts
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11,
		$12, $13, $14
	)`

func insertTrade(ctx context.Context, tx pgx.Tx, t domain.Trade) error {
	_, err := tx.Exec(ctx, insertTradeQuery,
		t.ID, t.SignalID, t.TokenID, string(t.Action), t.Quantity, t.Price,
		t.TotalCost, t.TotalProceeds, t.PnL, t.PnLPct, t.CompositeScore,
		string(t.Status), t.Trigger, t.Timestamp,
	)
	return err
}

// RecordBuy appends the buy trade and upserts the position it produced, in
// one transaction.
func (s *PositionStore) RecordBuy(ctx context.Context, trade domain.Trade, pos domain.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin record buy: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertTrade(ctx, tx, trade); err != nil {
		return fmt.Errorf("postgres: insert buy trade %s: %w", trade.ID, err)
	}

	const upsert = `
		INSERT INTO positions (token_id, quantity, avg_cost, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id) DO UPDATE SET
			quantity     = EXCLUDED.quantity,
			avg_cost     = EXCLUDED.avg_cost,
			last_updated = EXCLUDED.last_updated`

	if _, err := tx.Exec(ctx, upsert,
		pos.TokenID, pos.Quantity, pos.AvgCost, pos.LastUpdated,
	); err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", pos.TokenID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit record buy %s: %w", trade.ID, err)
	}
	return nil
}

// RecordSell appends the sell trade, removes the token's position, and marks
// its open buy trades closed, in one transaction.
func (s *PositionStore) RecordSell(ctx context.Context, trade domain.Trade) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin record sell: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertTrade(ctx, tx, trade); err != nil {
		return fmt.Errorf("postgres: insert sell trade %s: %w", trade.ID, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM positions WHERE token_id = $1`, trade.TokenID)
	if err != nil {
		return fmt.Errorf("postgres: remove position %s: %w", trade.TokenID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: sell %s: %w", trade.TokenID, domain.ErrNoPosition)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE trades SET status = 'closed'
		 WHERE token_id = $1 AND action = 'buy' AND status = 'open'`,
		trade.TokenID,
	); err != nil {
		return fmt.Errorf("postgres: close open buys for %s: %w", trade.TokenID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit record sell %s: %w", trade.ID, err)
	}
	return nil
}
