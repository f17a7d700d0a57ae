package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Summary and
// positions are stored as JSONB so the schema never chases the view types.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Insert persists one portfolio snapshot.
func (s *SnapshotStore) Insert(ctx context.Context, snap domain.PortfolioSnapshot) error {
	summaryJSON, err := json.Marshal(snap.Summary)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot summary: %w", err)
	}
	positionsJSON, err := json.Marshal(snap.Positions)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot positions: %w", err)
	}

	const query = `
		INSERT INTO portfolio_snapshots (id, summary, positions, taken_at)
		VALUES ($1, $2, $3, $4)`

	_, err = s.pool.Exec(ctx, query, snap.ID, summaryJSON, positionsJSON, snap.TakenAt)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func scanSnapshotRows(rows pgx.Rows) ([]domain.PortfolioSnapshot, error) {
	var snaps []domain.PortfolioSnapshot
	for rows.Next() {
		var snap domain.PortfolioSnapshot
		var summaryJSON, positionsJSON []byte

		if err := rows.Scan(&snap.ID, &summaryJSON, &positionsJSON, &snap.TakenAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(summaryJSON, &snap.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot %s summary: %w", snap.ID, err)
		}
		if err := json.Unmarshal(positionsJSON, &snap.Positions); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot %s positions: %w", snap.ID, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// ListRange returns snapshots with pagination and optional time filtering,
// newest first.
func (s *SnapshotStore) ListRange(ctx context.Context, opts domain.ListOpts) ([]domain.PortfolioSnapshot, error) {
	query := `SELECT id, summary, positions, taken_at FROM portfolio_snapshots WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND taken_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND taken_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY taken_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	snaps, err := scanSnapshotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan snapshots: %w", err)
	}
	return snaps, nil
}

// ListBefore returns snapshots taken strictly before the cutoff, oldest
// first, for archival.
func (s *SnapshotStore) ListBefore(ctx context.Context, before time.Time) ([]domain.PortfolioSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, summary, positions, taken_at FROM portfolio_snapshots
		 WHERE taken_at < $1 ORDER BY taken_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots before %s: %w", before, err)
	}
	defer rows.Close()

	snaps, err := scanSnapshotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan snapshots before %s: %w", before, err)
	}
	return snaps, nil
}

// DeleteBefore removes snapshots taken strictly before the cutoff and returns
// the number deleted.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM portfolio_snapshots WHERE taken_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}
