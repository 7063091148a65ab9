package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/recon/internal/ir"
)

// DefaultMaxRowsRead bounds how many rows a window read returns.
const DefaultMaxRowsRead = 5000

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// History is the append-only log the engine depends on.
type History interface {
	// Append writes entries atomically: all rows or none. It returns the
	// seq assigned to each entry, in order.
	Append(ctx context.Context, entries ...ir.MemoryEntry) ([]int64, error)

	// ReadWindow returns at most limit of the newest entries observed at or
	// after since, ordered by seq ascending.
	ReadWindow(ctx context.Context, since time.Time, limit int) ([]ir.MemoryEntry, error)

	// Search returns entries matching f, newest first.
	Search(ctx context.Context, f Filter) ([]ir.MemoryEntry, error)

	// Reset deletes all history and reports how many rows were removed.
	Reset(ctx context.Context) (int64, error)

	Close() error
}

// Leaser grants the exclusive pass lease. AcquireLease reports false without
// error when another holder owns an unexpired lease.
type Leaser interface {
	AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, holder string) error
}

// Backend is a History that can also grant the pass lease.
type Backend interface {
	History
	Leaser
}

// Filter selects history entries for inspection.
type Filter struct {
	Since     time.Time
	RecordID  string
	Outcomes  []ir.Outcome
	Attention bool // ERROR, SKIP_*, or flagged for review
	Limit     int
}

// Match reports whether e satisfies f. Backends that filter in SQL must
// agree with it.
func (f Filter) Match(e ir.MemoryEntry) bool {
	if !f.Since.IsZero() && e.ObservedAt.Before(f.Since) {
		return false
	}
	if f.RecordID != "" && e.RecordID != f.RecordID {
		return false
	}
	if len(f.Outcomes) > 0 {
		found := false
		for _, o := range f.Outcomes {
			if e.Outcome == o {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Attention && !(e.NeedsReview || e.Outcome.NeedsAttention()) {
		return false
	}
	return true
}

// attentionSQL mirrors ir.Outcome.NeedsAttention plus the review flag.
const attentionSQL = `(needs_review = %s OR outcome = 'ERROR' OR outcome LIKE 'SKIP%%' OR outcome LIKE 'FALLBACK_TASK_SKIP%%')`

// dialect carries the SQL differences between backends.
type dialect struct {
	placeholder func(n int) string
	trueLiteral string
	timeArg     func(t time.Time) any
}

// buildWhere renders f as a WHERE clause and its bind arguments.
func (f Filter) buildWhere(d dialect) (string, []any) {
	var conds []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return d.placeholder(len(args))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "observed_at >= "+next(d.timeArg(f.Since)))
	}
	if f.RecordID != "" {
		conds = append(conds, "record_id = "+next(f.RecordID))
	}
	if len(f.Outcomes) > 0 {
		marks := make([]string, len(f.Outcomes))
		for i, o := range f.Outcomes {
			marks[i] = next(string(o))
		}
		conds = append(conds, "outcome IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Attention {
		conds = append(conds, fmt.Sprintf(attentionSQL, d.trueLiteral))
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
