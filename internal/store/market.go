package store

import (
	"context"
	"fmt"
	"time"

	"github.com/marketkg/sentinel/internal/domain"
)

// InsertSnapshot writes a new snapshot row and trims the table down to the
// most recent SnapshotTailWindow rows, in one transaction (spec §5: the
// trim runs inside the same write that created the new row, so no reader
// ever observes a window briefly larger than the tail bound).
func (s *Store) InsertSnapshot(ctx context.Context, snap domain.Snapshot) (int64, error) {
	var id int64
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO snapshots (ts, prices_json, bells_json, indicators_json, signals_json)
			VALUES (?, ?, ?, ?, ?)`,
			snap.Ts, snap.PricesJSON, snap.BellsJSON, snap.IndicatorsJSON, snap.SignalsJSON)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM snapshots WHERE snapshot_id NOT IN (
				SELECT snapshot_id FROM snapshots ORDER BY snapshot_id DESC LIMIT ?
			)`, SnapshotTailWindow); err != nil {
			return fmt.Errorf("trim: %w", err)
		}

		return tx.Commit()
	})
	return id, err
}

// LatestSnapshot returns the most recently inserted snapshot, or a zero
// value and no error if the table is empty.
func (s *Store) LatestSnapshot(ctx context.Context) (domain.Snapshot, bool, error) {
	var snap domain.Snapshot
	row := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id, ts, prices_json, bells_json, indicators_json, signals_json
		FROM snapshots ORDER BY snapshot_id DESC LIMIT 1`)
	switch err := row.Scan(&snap.SnapshotID, &snap.Ts, &snap.PricesJSON, &snap.BellsJSON, &snap.IndicatorsJSON, &snap.SignalsJSON); err {
	case nil:
		return snap, true, nil
	default:
		if err.Error() == "sql: no rows in result set" {
			return domain.Snapshot{}, false, nil
		}
		return domain.Snapshot{}, false, fmt.Errorf("store.LatestSnapshot: %w", err)
	}
}

// RecentSnapshots returns up to n snapshots, most recent first.
func (s *Store) RecentSnapshots(ctx context.Context, n int) ([]domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, ts, prices_json, bells_json, indicators_json, signals_json
		FROM snapshots ORDER BY snapshot_id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store.RecentSnapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.Snapshot
	for rows.Next() {
		var snap domain.Snapshot
		if err := rows.Scan(&snap.SnapshotID, &snap.Ts, &snap.PricesJSON, &snap.BellsJSON, &snap.IndicatorsJSON, &snap.SignalsJSON); err != nil {
			return nil, fmt.Errorf("store.RecentSnapshots: scan: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// RecordTickerLookup appends one ticker price observation to the
// ticker_lookups audit trail. The reconciliation CLI reads it only to flag
// looked-up symbols that have no held position; it does not compare prices.
func (s *Store) RecordTickerLookup(ctx context.Context, symbol string, ts time.Time, price float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ticker_lookups (symbol, ts, price) VALUES (?, ?, ?)`,
		symbol, ts, price)
	if err != nil {
		return fmt.Errorf("store.RecordTickerLookup(%s): %w", symbol, err)
	}
	return nil
}
