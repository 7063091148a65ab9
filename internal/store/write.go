package store

import (
	"context"
	"fmt"

	"github.com/roach88/recon/internal/ir"
)

const insertHistorySQL = `
	INSERT INTO history
	(key, memory_id, derived_key, pass_id, record_id, item_index, kind, requested, outcome, ref,
	 title, start_at, end_at, deadline_at, all_day, location, needs_review, confidence, memo, error, observed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Append writes entries in one transaction and returns their seqs.
// A failure part way leaves no rows behind.
func (s *SQLiteStore) Append(ctx context.Context, entries ...ir.MemoryEntry) ([]int64, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []int64{}, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("append history: begin tx: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	stmt, err := tx.PrepareContext(ctx, insertHistorySQL)
	if err != nil {
		return nil, fmt.Errorf("append history: prepare: %w", err)
	}
	defer stmt.Close()

	seqs := make([]int64, 0, len(entries))
	for i, e := range entries {
		result, err := stmt.ExecContext(ctx,
			string(e.Key),
			e.MemoryID,
			string(e.DerivedKey),
			e.PassID,
			e.RecordID,
			e.ItemIndex,
			string(e.Kind),
			string(e.Requested),
			string(e.Outcome),
			string(e.Ref),
			e.Title,
			nullableNanos(e.Start),
			nullableNanos(e.End),
			nullableNanos(e.Deadline),
			boolToInt(e.AllDay),
			e.Location,
			boolToInt(e.NeedsReview),
			e.Confidence,
			e.Memo,
			e.Error,
			toNanos(e.ObservedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("append history: entry %d: %w", i, err)
		}
		seq, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("append history: last insert id: %w", err)
		}
		seqs = append(seqs, seq)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("append history: commit: %w", err)
	}
	return seqs, nil
}

// Reset deletes every history row. seq keeps increasing afterwards.
func (s *SQLiteStore) Reset(ctx context.Context) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	result, err := db.ExecContext(ctx, `DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("reset history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset history: rows affected: %w", err)
	}
	return n, nil
}
