package store

import (
	"context"
	"fmt"
	"time"
)

const passLeaseName = "pass"

// AcquireLease takes the pass lease for holder if it is free, expired, or
// already held by holder. The check and the write are a single statement.
func (s *SQLiteStore) AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	now := s.now()
	result, err := db.ExecContext(ctx, `
		INSERT INTO pass_lease (name, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE
		SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE pass_lease.expires_at < ? OR pass_lease.holder = excluded.holder
	`, passLeaseName, holder, toNanos(now.Add(ttl)), toNanos(now))
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease: rows affected: %w", err)
	}
	return n > 0, nil
}

// ReleaseLease drops the lease if holder owns it.
func (s *SQLiteStore) ReleaseLease(ctx context.Context, holder string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM pass_lease WHERE name = ? AND holder = ?`, passLeaseName, holder)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
