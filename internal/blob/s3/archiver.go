package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// Narrow store surfaces required by the archiver. The Postgres stores satisfy
// these through their ListBefore methods.

// SignalArchiveStore provides read access to aged signals.
type SignalArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error)
}

// TradeArchiveStore provides read access to aged trades.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// SnapshotArchiveStore provides read access to aged portfolio snapshots.
type SnapshotArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.PortfolioSnapshot, error)
}

// ArchiveImpl implements domain.Archiver by reading aged records from the
// stores, serializing them to JSONL, and uploading the result to the bucket.
// Deleting the archived rows from the primary store is a separate, explicit
// step that runs after the archive has been verified.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	signals   SignalArchiveStore
	trades    TradeArchiveStore
	snapshots SnapshotArchiveStore
	audit     domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	signals SignalArchiveStore,
	trades TradeArchiveStore,
	snapshots SnapshotArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		signals:   signals,
		trades:    trades,
		snapshots: snapshots,
		audit:     audit,
	}
}

// ArchiveSignals uploads all signals emitted before the cutoff to
// archive/signals/YYYY-MM.jsonl and records the event in the audit log. It
// returns the number of archived records.
func (a *ArchiveImpl) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	signals, err := a.signals.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals query: %w", err)
	}
	return archive(ctx, a, "signals", before, signals)
}

// ArchiveTrades uploads all trades executed before the cutoff to
// archive/trades/YYYY-MM.jsonl and records the event in the audit log.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	return archive(ctx, a, "trades", before, trades)
}

// ArchiveSnapshots uploads all portfolio snapshots taken before the cutoff to
// archive/snapshots/YYYY-MM.jsonl and records the event in the audit log.
func (a *ArchiveImpl) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.snapshots.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	return archive(ctx, a, "snapshots", before, snaps)
}

// archive serializes the records, uploads them, and logs the archival event.
// Zero records means nothing is uploaded.
func archive[T any](ctx context.Context, a *ArchiveImpl, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff:
//
//	archive/signals/2026-01.jsonl
//	archive/trades/2026-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes a slice as newline-delimited JSON, one compact
// object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
