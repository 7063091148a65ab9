package engine

import (
	"context"
	"time"

	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/memory"
	"github.com/roach88/recon/internal/store"
)

// NoItemsTitle marks the sentinel entry of a pass that appended nothing else.
const NoItemsTitle = "(no items)"

// logWriter appends entries to history and mirrors them into the pass's
// index, so a later item of the same pass sees earlier outcomes.
type logWriter struct {
	history store.History
	ix      *memory.Index
}

func newLogWriter(h store.History, ix *memory.Index) *logWriter {
	return &logWriter{history: h, ix: ix}
}

// write appends one entry in its own transaction and returns it with the
// seq the store assigned.
func (w *logWriter) write(ctx context.Context, entry ir.MemoryEntry) (ir.MemoryEntry, error) {
	seqs, err := w.history.Append(ctx, entry)
	if err != nil {
		return entry, &HistoryError{Op: "append", Err: err}
	}
	if len(seqs) == 1 {
		entry.Seq = seqs[0]
	}
	w.ix.Put(entry)
	return entry, nil
}

// sentinel is the entry recorded for a pass with zero items. It has no
// key and is never indexed; it carries the plan's assistant memo.
func sentinel(pc *passContext, observedAt time.Time, memo string) ir.MemoryEntry {
	return ir.MemoryEntry{
		PassID:     pc.passID,
		RecordID:   pc.rec.ID,
		ItemIndex:  -1,
		Outcome:    ir.OutcomeNoItems,
		Title:      NoItemsTitle,
		Memo:       memo,
		ObservedAt: observedAt,
	}
}
