package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/recon/internal/ir"
)

const historyColumns = `seq, key, memory_id, derived_key, pass_id, record_id, item_index, kind, requested, outcome, ref,
	title, start_at, end_at, deadline_at, all_day, location, needs_review, confidence, memo, error, observed_at`

// ReadWindow returns the newest limit entries observed at or after since,
// in append order. Returns an empty slice (not nil) when nothing matches.
func (s *SQLiteStore) ReadWindow(ctx context.Context, since time.Time, limit int) ([]ir.MemoryEntry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMaxRowsRead
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+historyColumns+` FROM (
			SELECT * FROM history
			WHERE observed_at >= ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC
	`, toNanos(since), limit)
	if err != nil {
		return nil, fmt.Errorf("read window: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// Search returns entries matching f, newest first.
func (s *SQLiteStore) Search(ctx context.Context, f Filter) ([]ir.MemoryEntry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	where, args := f.buildWhere(sqliteDialect)
	query := `SELECT ` + historyColumns + ` FROM history ` + where + ` ORDER BY seq DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]ir.MemoryEntry, error) {
	entries := []ir.MemoryEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (ir.MemoryEntry, error) {
	var (
		e                            ir.MemoryEntry
		key, derived, kind, req, out string
		ref                          string
		start, end, deadline         sql.NullInt64
		allDay, review               int
		observed                     int64
	)
	err := rows.Scan(
		&e.Seq, &key, &e.MemoryID, &derived, &e.PassID, &e.RecordID, &e.ItemIndex,
		&kind, &req, &out, &ref, &e.Title, &start, &end, &deadline, &allDay,
		&e.Location, &review, &e.Confidence, &e.Memo, &e.Error, &observed,
	)
	if err != nil {
		return ir.MemoryEntry{}, fmt.Errorf("scan history: %w", err)
	}
	e.Key = ir.Key(key)
	e.DerivedKey = ir.Key(derived)
	e.Kind = ir.Kind(kind)
	e.Requested = ir.Operation(req)
	e.Outcome = ir.Outcome(out)
	e.Ref = ir.Ref(ref)
	e.Start = timeFromNullable(start)
	e.End = timeFromNullable(end)
	e.Deadline = timeFromNullable(deadline)
	e.AllDay = allDay != 0
	e.NeedsReview = review != 0
	e.ObservedAt = fromNanos(observed)
	return e, nil
}
