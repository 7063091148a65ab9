package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/recon/internal/ir"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// createTestStore opens a SQLite store in a temp dir.
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry builds an entry with the minimum fields set.
func createTestEntry(n int, outcome ir.Outcome, observed time.Time) ir.MemoryEntry {
	key := ir.Key(fmt.Sprintf("%064x", n))
	return ir.MemoryEntry{
		Key:        key,
		MemoryID:   key.Short(),
		PassID:     "pass-1",
		RecordID:   fmt.Sprintf("rec-%d", n),
		ItemIndex:  n,
		Kind:       ir.KindScheduledEvent,
		Requested:  ir.OpCreate,
		Outcome:    outcome,
		Title:      fmt.Sprintf("item %d", n),
		Confidence: 0.75,
		ObservedAt: observed,
	}
}
