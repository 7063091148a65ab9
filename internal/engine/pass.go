package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/memory"
	"github.com/roach88/recon/internal/plan"
)

// RunOnePass reconciles one record end to end.
//
// It returns a LockContentionError without doing anything when another
// pass holds the lock, a PlannerUnavailableError before any mutation when
// the plan cannot be obtained, and a HistoryError when history cannot be
// read or appended. Adapter failures never fail the pass; they show up as
// ERROR items in the report.
//
// When a history append fails mid-pass the partial report is returned
// together with the error.
func (e *Engine) RunOnePass(ctx context.Context, rec ir.Record) (*PassReport, error) {
	passID := e.passIDs.Generate()
	log := e.logger.With("pass", passID, "record", rec.ID)

	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	release, err := e.locker.Acquire(lockCtx, passID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			e.metrics.pass(resultHistoryError, 0)
			return nil, &HistoryError{Op: "lock", Err: err}
		}
		log.Info("pass skipped: lock busy", "event", "lock_contention", "timeout", e.lockTimeout)
		e.metrics.pass(resultLockContention, 0)
		return nil, &LockContentionError{Holder: passID, Timeout: e.lockTimeout, Err: err}
	}
	defer release()

	started := e.clock.Now()
	report, result, err := e.runLocked(ctx, passID, rec)
	e.metrics.pass(result, e.clock.Now().Sub(started))
	if report != nil {
		report.StartedAt = started
		report.FinishedAt = e.clock.Now()
	}
	return report, err
}

func (e *Engine) runLocked(ctx context.Context, passID string, rec ir.Record) (*PassReport, string, error) {
	log := e.logger.With("pass", passID, "record", rec.ID)
	now := e.clock.Now()

	entries, err := e.history.ReadWindow(ctx, now.Add(-e.window), e.maxRowsRead)
	if err != nil {
		log.Error("history read failed", "event", "history_error", "error", err)
		return nil, resultHistoryError, &HistoryError{Op: "read", Err: err}
	}
	ix := memory.Build(entries, now, e.window)
	e.metrics.indexed(ix.Len())
	log.Debug("memory index built", "rows", len(entries), "keys", ix.Len())

	raw, err := e.planner.Plan(ctx, rec, ix.Snapshot(e.snapshotEntries, e.snapshotMemos))
	if err != nil {
		log.Error("planner failed", "event", "planner_unavailable", "error", err)
		return nil, resultPlannerUnavailable, &PlannerUnavailableError{RecordID: rec.ID, Err: err}
	}
	normalized, err := plan.Normalize(raw, rec, e.planOptions())
	if err != nil {
		log.Error("planner output rejected", "event", "planner_unavailable", "error", err)
		return nil, resultPlannerUnavailable, &PlannerUnavailableError{RecordID: rec.ID, Err: err}
	}
	for _, w := range normalized.Warnings {
		log.Debug("plan coerced", "warning", w)
	}

	pc := &passContext{
		passID:         passID,
		rec:            rec,
		classification: normalized.Plan.Classification,
		ix:             ix,
		log:            log,
	}
	report := &PassReport{
		PassID:         passID,
		RecordID:       rec.ID,
		DryRun:         e.dryRun,
		Classification: normalized.Plan.Classification,
		AssistantMemo:  normalized.Plan.AssistantMemo,
		Warnings:       normalized.Warnings,
		Items:          make([]ItemResult, 0, len(normalized.Plan.Items)),
	}
	w := newLogWriter(e.history, ix)

	appended := 0
	for _, item := range normalized.Plan.Items {
		if err := ctx.Err(); err != nil {
			log.Info("pass interrupted", "remaining", len(normalized.Plan.Items)-len(report.Items))
			return report, resultError, fmt.Errorf("pass %s interrupted: %w", passID, err)
		}

		res, entry := e.reconcileItem(ctx, pc, item)
		if entry != nil {
			written, err := w.write(ctx, *entry)
			if err != nil {
				// The mutation already happened; name it so an operator can
				// reconcile by hand.
				log.Error("entry append failed",
					"event", "history_error",
					"item", item.Index,
					"outcome", entry.Outcome,
					"ref", entry.Ref,
					"error", err,
				)
				report.Items = append(report.Items, res)
				return report, resultHistoryError, err
			}
			res.Seq = written.Seq
			appended++
		}
		report.Items = append(report.Items, res)
		e.metrics.outcome(res.Outcome)

		log.Log(ctx, itemLevel(res), "item reconciled",
			"item", res.Index,
			"kind", res.Kind,
			"requested", res.Requested,
			"outcome", res.Outcome,
			"memory_id", res.MemoryID,
			"ref", res.Ref,
		)
	}

	// A pass that left no entry (no items, or only DISCARD) still marks the
	// record as seen.
	if appended == 0 {
		if _, err := w.write(ctx, sentinel(pc, e.clock.Now(), normalized.Plan.AssistantMemo)); err != nil {
			log.Error("sentinel append failed", "event", "history_error", "error", err)
			return report, resultHistoryError, err
		}
	}

	log.Info("pass complete",
		"event", "pass_complete",
		"items", len(report.Items),
		"failed", report.Failed(),
		"dry_run", e.dryRun,
	)
	return report, resultOK, nil
}

// itemLevel logs failures louder than routine outcomes.
func itemLevel(res ItemResult) slog.Level {
	switch {
	case res.Outcome == ir.OutcomeError:
		return slog.LevelWarn
	case res.Outcome.Mutated():
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
