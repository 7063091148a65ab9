package engine

import (
	"context"

	"github.com/roach88/recon/internal/ir"
)

// deriveTask turns an event that could not be placed into a deadline task.
// The deadline is the item's deadline, else its end.
func deriveTask(item ir.ProposedItem) ir.ProposedItem {
	derived := ir.ProposedItem{
		Index:       item.Index,
		Kind:        ir.KindDeadlineTask,
		Operation:   ir.OpCreate,
		Title:       item.Title,
		Location:    item.Location,
		Body:        item.Body,
		Confidence:  item.Confidence,
		NeedsReview: item.NeedsReview,
		Memo:        item.Memo,
	}
	switch {
	case item.Deadline != nil:
		derived.Deadline = item.Deadline
	case item.End != nil:
		derived.Deadline = item.End
	}
	return derived
}

// applyFallback reconciles the derived task once, under its own key, and
// folds the result into entry. A derived task is never an event, so it can
// not fall back again.
func (e *Engine) applyFallback(ctx context.Context, pc *passContext, item ir.ProposedItem, entry *ir.MemoryEntry) {
	derived := deriveTask(item)
	dkey, err := ir.Fingerprint(derived)
	if err != nil {
		entry.Outcome = ir.FallbackOutcome(ir.OutcomeError)
		entry.NeedsReview = true
		entry.Error = err.Error()
		return
	}

	a := e.apply(ctx, pc, derived, dkey)
	entry.Outcome = ir.FallbackOutcome(a.outcome)
	entry.Ref = a.ref
	entry.DerivedKey = dkey
	if derived.Deadline == nil {
		entry.NeedsReview = true
	}
	if a.err != nil {
		entry.NeedsReview = true
		entry.Error = a.err.Error()
	}
	pc.log.Debug("fallback applied",
		"event", "fallback",
		"item", item.Index,
		"derived_key", dkey.Short(),
		"outcome", entry.Outcome,
	)
}
