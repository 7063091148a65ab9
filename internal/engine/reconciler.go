package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/recon/internal/adapter"
	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/memory"
)

// passContext is the state shared by the items of one pass.
type passContext struct {
	passID         string
	rec            ir.Record
	classification ir.Classification
	ix             *memory.Index
	log            *slog.Logger
}

// resource is the adapter a mutation goes to.
type resource int

const (
	resCalendar resource = iota
	resTasks
)

func (r resource) String() string {
	if r == resTasks {
		return "tasks"
	}
	return "calendar"
}

func resourceFor(k ir.Kind) resource {
	if k == ir.KindDeadlineTask {
		return resTasks
	}
	return resCalendar
}

// resourceOf is the adapter that owns an entry's ref. Fallback entries
// hold a task ref whatever kind was proposed.
func resourceOf(e ir.MemoryEntry) resource {
	if e.Outcome.IsFallback() {
		return resTasks
	}
	return resourceFor(e.Kind)
}

type target struct {
	ref ir.Ref
	res resource
}

// resolveTarget picks the resource an UPDATE or CANCEL applies to:
// explicit ref, then the live entry named by memory id, then the live
// entry under the item's own key.
func resolveTarget(item ir.ProposedItem, ix *memory.Index, existing ir.MemoryEntry, found bool) target {
	if item.Target.Ref != "" {
		return target{ref: item.Target.Ref, res: resourceFor(item.Kind)}
	}
	if id := item.Target.MemoryID; id != "" {
		if e, ok := ix.Resolve(id); ok && e.Live() {
			return target{ref: e.Ref, res: resourceOf(e)}
		}
	}
	if found && existing.Live() {
		return target{ref: existing.Ref, res: resourceOf(existing)}
	}
	return target{}
}

// applied is the decision for one item and the ref it leaves behind.
type applied struct {
	outcome ir.Outcome
	ref     ir.Ref
	err     error
}

// apply runs the decision procedure for item under key and performs the
// adapter call it calls for. DISCARD and NOTE are handled by the caller.
func (e *Engine) apply(ctx context.Context, pc *passContext, item ir.ProposedItem, key ir.Key) applied {
	existing, found := pc.ix.Lookup(key)
	live := found && existing.Live()

	switch item.Operation {
	case ir.OpCreate:
		if live {
			return applied{outcome: ir.OutcomeSkipDuplicate, ref: existing.Ref}
		}
		res := resourceFor(item.Kind)
		if res == resCalendar && eventStart(item) == nil {
			return applied{outcome: ir.OutcomeSkipNoTime}
		}
		return e.mutate(ctx, pc, item, ir.OpCreate, target{res: res})

	case ir.OpUpdate, ir.OpCancel:
		t := resolveTarget(item, pc.ix, existing, found)
		if t.ref == "" {
			return applied{outcome: ir.OutcomeSkipNoTarget}
		}
		if item.Operation == ir.OpUpdate && t.res == resCalendar && eventStart(item) == nil {
			return applied{outcome: ir.OutcomeSkipNoTime, ref: t.ref}
		}
		return e.mutate(ctx, pc, item, item.Operation, t)

	default:
		a := applied{outcome: ir.OutcomeSkip}
		if live {
			a.ref = existing.Ref
		}
		return a
	}
}

var errAdapterUnavailable = errors.New("adapter not configured")

// mutate performs one adapter call, or records what it would have done in
// dry-run mode. Adapter failures become ERROR; a vanished target becomes
// SKIP_NOT_FOUND.
func (e *Engine) mutate(ctx context.Context, pc *passContext, item ir.ProposedItem, op ir.Operation, t target) applied {
	if e.dryRun {
		return applied{outcome: ir.DryRunOutcome(op), ref: t.ref}
	}

	ref, err := e.call(ctx, pc, item, op, t)
	switch {
	case errors.Is(err, errAdapterUnavailable):
		return applied{outcome: ir.OutcomeSkipAdapterUnavailable, ref: t.ref}
	case err != nil && op != ir.OpCreate && errors.Is(err, adapter.ErrNotFound):
		pc.log.Info("target gone", "event", "target_not_found", "op", op, "ref", t.ref)
		return applied{outcome: ir.OutcomeSkipNotFound, ref: t.ref}
	case err != nil:
		e.metrics.adapterError(t.res.String(), op)
		return applied{
			outcome: ir.OutcomeError,
			ref:     t.ref,
			err:     &AdapterError{Adapter: t.res.String(), Op: op, Ref: t.ref, Err: err},
		}
	}

	switch op {
	case ir.OpCreate:
		return applied{outcome: ir.OutcomeCreate, ref: ref}
	case ir.OpUpdate:
		return applied{outcome: ir.OutcomeUpdate, ref: t.ref}
	default:
		return applied{outcome: ir.OutcomeCancel, ref: t.ref}
	}
}

func (e *Engine) call(ctx context.Context, pc *passContext, item ir.ProposedItem, op ir.Operation, t target) (ir.Ref, error) {
	if t.res == resTasks {
		if e.tasks == nil {
			return "", errAdapterUnavailable
		}
		switch op {
		case ir.OpCreate:
			return e.tasks.CreateTask(ctx, e.taskSpec(pc, item))
		case ir.OpUpdate:
			return "", e.tasks.UpdateTask(ctx, t.ref, e.taskSpec(pc, item))
		default:
			return "", e.tasks.DeleteTask(ctx, t.ref)
		}
	}

	if e.calendar == nil {
		return "", errAdapterUnavailable
	}
	switch op {
	case ir.OpCreate:
		return e.calendar.CreateEvent(ctx, e.eventSpec(pc, item))
	case ir.OpUpdate:
		return "", e.calendar.UpdateEvent(ctx, t.ref, e.eventSpec(pc, item))
	default:
		return "", e.calendar.DeleteEvent(ctx, t.ref)
	}
}

// reconcileItem decides and applies one item and builds its history entry.
// The entry is nil for DISCARD, which leaves no trace.
func (e *Engine) reconcileItem(ctx context.Context, pc *passContext, item ir.ProposedItem) (ItemResult, *ir.MemoryEntry) {
	res := ItemResult{
		Index:     item.Index,
		Kind:      item.Kind,
		Requested: item.Operation,
		Title:     item.Title,
	}
	if item.Kind == ir.KindDiscard {
		res.Outcome = ir.OutcomeNone
		res.Chain = []ir.Outcome{ir.OutcomeNone}
		return res, nil
	}

	key, err := ir.Fingerprint(item)
	if err != nil {
		res.Outcome = ir.OutcomeError
		res.Chain = []ir.Outcome{ir.OutcomeError}
		res.NeedsReview = true
		res.Error = err.Error()
		return res, nil
	}

	var a applied
	if item.Kind == ir.KindNote {
		a = applied{outcome: ir.OutcomeRecordOnly}
	} else {
		a = e.apply(ctx, pc, item, key)
	}
	res.Chain = []ir.Outcome{a.outcome}

	entry := e.newEntry(pc, item, key, a)
	if a.outcome == ir.OutcomeSkipNoTime {
		if e.fallback {
			e.applyFallback(ctx, pc, item, &entry)
			res.Chain = append(res.Chain, entry.Outcome)
		} else {
			entry.NeedsReview = true
		}
	}

	res.Outcome = entry.Outcome
	res.Key = entry.Key
	res.MemoryID = entry.MemoryID
	res.DerivedKey = entry.DerivedKey
	res.Ref = entry.Ref
	res.NeedsReview = entry.NeedsReview
	res.Error = entry.Error
	return res, &entry
}

func (e *Engine) newEntry(pc *passContext, item ir.ProposedItem, key ir.Key, a applied) ir.MemoryEntry {
	entry := ir.MemoryEntry{
		Key:         key,
		MemoryID:    key.Short(),
		PassID:      pc.passID,
		RecordID:    pc.rec.ID,
		ItemIndex:   item.Index,
		Kind:        item.Kind,
		Requested:   item.Operation,
		Outcome:     a.outcome,
		Ref:         a.ref,
		Title:       item.Title,
		Start:       item.Start,
		End:         item.End,
		Deadline:    item.Deadline,
		AllDay:      item.AllDay,
		Location:    item.Location,
		NeedsReview: item.NeedsReview,
		Confidence:  item.Confidence,
		Memo:        item.Memo,
		ObservedAt:  e.clock.Now(),
	}
	if a.err != nil {
		entry.NeedsReview = true
		entry.Error = a.err.Error()
	}
	return entry
}
