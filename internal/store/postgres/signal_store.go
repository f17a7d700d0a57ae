package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalSelectCols = `id, token_id, ml_probability, rule_score, sentiment_score,
	event_score, composite_score, action, confidence, weights_used,
	min_threshold, missing_scores, degraded, consumed, ts`

func scanSignal(row pgx.Row) (domain.Signal, error) {
	var sig domain.Signal
	var action string
	var weightsJSON, missingJSON []byte

	err := row.Scan(
		&sig.ID, &sig.TokenID,
		&sig.MLProbability, &sig.RuleScore, &sig.SentimentScore, &sig.EventScore,
		&sig.CompositeScore, &action, &sig.Confidence, &weightsJSON,
		&sig.MinThreshold, &missingJSON, &sig.Degraded, &sig.Consumed, &sig.Timestamp,
	)
	if err != nil {
		return domain.Signal{}, err
	}
	sig.Action = domain.Action(action)

	if err := json.Unmarshal(weightsJSON, &sig.WeightsUsed); err != nil {
		return domain.Signal{}, fmt.Errorf("postgres: unmarshal weights for signal %s: %w", sig.ID, err)
	}
	if missingJSON != nil {
		if err := json.Unmarshal(missingJSON, &sig.MissingScores); err != nil {
			return domain.Signal{}, fmt.Errorf("postgres: unmarshal missing scores for signal %s: %w", sig.ID, err)
		}
	}
	return sig, nil
}

func scanSignalRows(rows pgx.Rows) ([]domain.Signal, error) {
	var signals []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// Insert appends a new signal to the ledger.
func (s *SignalStore) Insert(ctx context.Context, sig domain.Signal) error {
	weightsJSON, err := json.Marshal(sig.WeightsUsed)
	if err != nil {
		return fmt.Errorf("postgres: marshal weights for signal %s: %w", sig.ID, err)
	}
	var missingJSON []byte
	if len(sig.MissingScores) > 0 {
		missingJSON, err = json.Marshal(sig.MissingScores)
		if err != nil {
			return fmt.Errorf("postgres: marshal missing scores for signal %s: %w", sig.ID, err)
		}
	}

	const query = `
		INSERT INTO signals (
			id, token_id, ml_probability, rule_score, sentiment_score,
			event_score, composite_score, action, confidence, weights_used,
			min_threshold, missing_scores, degraded, consumed, ts
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)`

	_, err = s.pool.Exec(ctx, query,
		sig.ID, sig.TokenID,
		sig.MLProbability, sig.RuleScore, sig.SentimentScore, sig.EventScore,
		sig.CompositeScore, string(sig.Action), sig.Confidence, weightsJSON,
		sig.MinThreshold, missingJSON, sig.Degraded, sig.Consumed, sig.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: %w", sig.ID, err)
	}
	return nil
}

// GetByID retrieves a single signal by its ID.
func (s *SignalStore) GetByID(ctx context.Context, id string) (domain.Signal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+signalSelectCols+` FROM signals WHERE id = $1`, id)

	sig, err := scanSignal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Signal{}, domain.ErrNotFound
		}
		return domain.Signal{}, fmt.Errorf("postgres: get signal %s: %w", id, err)
	}
	return sig, nil
}

// ListRecent returns signals emitted at or after since, newest first.
func (s *SignalStore) ListRecent(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Signal, error) {
	query := `SELECT ` + signalSelectCols + ` FROM signals WHERE ts >= $1`
	args := []any{since}
	argIdx := 2

	if opts.Until != nil {
		query += fmt.Sprintf(" AND ts <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY ts DESC"

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
		return nil, fmt.Errorf("postgres: list recent signals: %w", err)
	}
	defer rows.Close()

	signals, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent signals: %w", err)
	}
	return signals, nil
}

// ListTop returns the strongest signals at or after since, ranked by the
// absolute composite score.
func (s *SignalStore) ListTop(ctx context.Context, since time.Time, minScore float64, limit int) ([]domain.Signal, error) {
	const query = `
		SELECT ` + signalSelectCols + ` FROM signals
		WHERE ts >= $1 AND ABS(composite_score) >= $2
		ORDER BY ABS(composite_score) DESC, ts DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, since, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list top signals: %w", err)
	}
	defer rows.Close()

	signals, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan top signals: %w", err)
	}
	return signals, nil
}

// ListUnconsumed returns actionable, unconsumed signals emitted at or after
// since, oldest first so the executor drains the backlog in emission order.
func (s *SignalStore) ListUnconsumed(ctx context.Context, since time.Time) ([]domain.Signal, error) {
	const query = `
		SELECT ` + signalSelectCols + ` FROM signals
		WHERE ts >= $1 AND NOT consumed AND action <> 'hold'
		ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unconsumed signals: %w", err)
	}
	defer rows.Close()

	signals, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan unconsumed signals: %w", err)
	}
	return signals, nil
}

// MarkConsumed atomically flips the consumed flag. The WHERE guard makes the
// claim race-free: exactly one caller observes true for a given signal.
func (s *SignalStore) MarkConsumed(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE signals SET consumed = TRUE WHERE id = $1 AND NOT consumed`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("postgres: mark signal %s consumed: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListBefore returns signals emitted strictly before the cutoff, oldest
// first, for archival.
func (s *SignalStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+signalSelectCols+` FROM signals WHERE ts < $1 ORDER BY ts ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals before %s: %w", before, err)
	}
	defer rows.Close()

	signals, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan signals before %s: %w", before, err)
	}
	return signals, nil
}

// DeleteBefore removes signals emitted strictly before the cutoff and returns
// the number deleted. Trades referencing a deleted signal must be pruned
// first.
func (s *SignalStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signals WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete signals before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}
