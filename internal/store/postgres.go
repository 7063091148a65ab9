package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/recon/internal/ir"
)

// passLockID is the advisory lock key for the pass lease.
const passLockID int64 = 0x7265636f6e // "recon"

// PostgresStore keeps history in PostgreSQL for deployments where more than
// one host may run the scheduler.
type PostgresStore struct {
	pool *pgxpool.Pool

	mu         sync.Mutex
	leaseConn  *pgxpool.Conn
	leaseOwner string
}

var _ Backend = (*PostgresStore)(nil)

// NewPostgresStore connects and creates the schema if needed.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history (
			seq          BIGSERIAL PRIMARY KEY,
			key          TEXT NOT NULL,
			memory_id    TEXT NOT NULL,
			derived_key  TEXT NOT NULL DEFAULT '',
			pass_id      TEXT NOT NULL,
			record_id    TEXT NOT NULL,
			item_index   INTEGER NOT NULL,
			kind         TEXT NOT NULL,
			requested    TEXT NOT NULL,
			outcome      TEXT NOT NULL,
			ref          TEXT NOT NULL DEFAULT '',
			title        TEXT NOT NULL,
			start_at     TIMESTAMPTZ NULL,
			end_at       TIMESTAMPTZ NULL,
			deadline_at  TIMESTAMPTZ NULL,
			all_day      BOOLEAN NOT NULL DEFAULT FALSE,
			location     TEXT NOT NULL DEFAULT '',
			needs_review BOOLEAN NOT NULL DEFAULT FALSE,
			confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
			memo         TEXT NOT NULL DEFAULT '',
			error        TEXT NOT NULL DEFAULT '',
			observed_at  TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_observed ON history (observed_at, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_history_key ON history (key);`,
		`CREATE INDEX IF NOT EXISTS idx_history_outcome ON history (outcome, observed_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init history schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	trueLiteral: "TRUE",
	timeArg:     func(t time.Time) any { return t.UTC() },
}

// Append writes entries in one transaction and returns their seqs.
func (s *PostgresStore) Append(ctx context.Context, entries ...ir.MemoryEntry) ([]int64, error) {
	if len(entries) == 0 {
		return []int64{}, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("append history: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	seqs := make([]int64, 0, len(entries))
	for i, e := range entries {
		var seq int64
		err := tx.QueryRow(ctx, `
			INSERT INTO history
			(key, memory_id, derived_key, pass_id, record_id, item_index, kind, requested, outcome, ref,
			 title, start_at, end_at, deadline_at, all_day, location, needs_review, confidence, memo, error, observed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
			RETURNING seq`,
			string(e.Key), e.MemoryID, string(e.DerivedKey), e.PassID, e.RecordID, e.ItemIndex,
			string(e.Kind), string(e.Requested), string(e.Outcome), string(e.Ref), e.Title,
			utcPtr(e.Start), utcPtr(e.End), utcPtr(e.Deadline), e.AllDay, e.Location,
			e.NeedsReview, e.Confidence, e.Memo, e.Error, e.ObservedAt.UTC(),
		).Scan(&seq)
		if err != nil {
			return nil, fmt.Errorf("append history: entry %d: %w", i, err)
		}
		seqs = append(seqs, seq)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("append history: commit: %w", err)
	}
	return seqs, nil
}

// ReadWindow returns the newest limit entries observed at or after since,
// in append order.
func (s *PostgresStore) ReadWindow(ctx context.Context, since time.Time, limit int) ([]ir.MemoryEntry, error) {
	if limit <= 0 {
		limit = DefaultMaxRowsRead
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+historyColumns+` FROM (
			SELECT * FROM history
			WHERE observed_at >= $1
			ORDER BY seq DESC
			LIMIT $2
		) w
		ORDER BY seq ASC`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read window: %w", err)
	}
	defer rows.Close()
	return collectPgEntries(rows)
}

// Search returns entries matching f, newest first.
func (s *PostgresStore) Search(ctx context.Context, f Filter) ([]ir.MemoryEntry, error) {
	where, args := f.buildWhere(postgresDialect)
	query := `SELECT ` + historyColumns + ` FROM history ` + where + ` ORDER BY seq DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	defer rows.Close()
	return collectPgEntries(rows)
}

// Reset deletes every history row.
func (s *PostgresStore) Reset(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("reset history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AcquireLease takes a session advisory lock on a dedicated connection.
// The ttl is not needed: the server drops the lock if the session dies.
func (s *PostgresStore) AcquireLease(ctx context.Context, holder string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseConn != nil {
		return s.leaseOwner == holder, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, passLockID).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	s.leaseConn = conn
	s.leaseOwner = holder
	return true, nil
}

// ReleaseLease unlocks and returns the dedicated connection to the pool.
// If the unlock fails the connection is closed instead, so the server drops
// the session lock rather than a pooled session keeping it.
func (s *PostgresStore) ReleaseLease(ctx context.Context, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseConn == nil || s.leaseOwner != holder {
		return nil
	}
	conn := s.leaseConn
	s.leaseConn = nil
	s.leaseOwner = ""
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, passLockID); err != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = conn.Hijack().Close(closeCtx)
		return fmt.Errorf("release lease: %w", err)
	}
	conn.Release()
	return nil
}

// Close releases any held lease and closes the pool.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	if s.leaseConn != nil {
		s.leaseConn.Release()
		s.leaseConn = nil
	}
	s.mu.Unlock()
	s.pool.Close()
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func collectPgEntries(rows pgx.Rows) ([]ir.MemoryEntry, error) {
	entries := []ir.MemoryEntry{}
	for rows.Next() {
		var (
			e                            ir.MemoryEntry
			key, derived, kind, req, out string
			ref                          string
			start, end, deadline         *time.Time
			observed                     time.Time
		)
		err := rows.Scan(
			&e.Seq, &key, &e.MemoryID, &derived, &e.PassID, &e.RecordID, &e.ItemIndex,
			&kind, &req, &out, &ref, &e.Title, &start, &end, &deadline, &e.AllDay,
			&e.Location, &e.NeedsReview, &e.Confidence, &e.Memo, &e.Error, &observed,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Key = ir.Key(key)
		e.DerivedKey = ir.Key(derived)
		e.Kind = ir.Kind(kind)
		e.Requested = ir.Operation(req)
		e.Outcome = ir.Outcome(out)
		e.Ref = ir.Ref(ref)
		e.Start = utcPtr(start)
		e.End = utcPtr(end)
		e.Deadline = utcPtr(deadline)
		e.ObservedAt = observed.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}
