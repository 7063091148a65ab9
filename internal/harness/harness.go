package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/recon/internal/adapter"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/memory"
	"github.com/roach88/recon/internal/planner"
	"github.com/roach88/recon/internal/store"
	"github.com/roach88/recon/internal/testutil"
)

// Harness holds the state of one scenario run.
type Harness struct {
	store    *store.SQLiteStore
	engine   *engine.Engine
	clock    *testutil.FixedClock
	calendar *adapter.MemoryCalendar
	tasks    *adapter.MemoryTasks
	calls    *recorder
	step     *PassStep
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory SQLite history, fresh
// in-memory adapters, a fixed clock and sequential pass ids, so the trace
// is reproducible.
func Run(scenario *Scenario) (*Result, error) {
	loc := time.UTC
	if scenario.Timezone != "" {
		l, err := time.LoadLocation(scenario.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone: %w", err)
		}
		loc = l
	}
	now := DefaultNow
	if scenario.Now != nil {
		now = *scenario.Now
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:    st,
		clock:    testutil.NewFixedClock(now),
		calendar: adapter.NewMemoryCalendar(),
		tasks:    adapter.NewMemoryTasks(),
		calls:    &recorder{},
	}
	for _, r := range scenario.Seed.Calendar {
		h.calendar.Seed(r.Ref, adapter.EventSpec{Title: r.Title})
	}
	for _, r := range scenario.Seed.Tasks {
		h.tasks.Seed(r.Ref, adapter.TaskSpec{Title: r.Title})
	}

	sched := engine.DefaultScheduling()
	sched.Location = loc
	sched.TitlePrefix = scenario.TitlePrefix
	opts := []engine.EngineOption{
		engine.WithClock(h.clock),
		engine.WithPassIDs(testutil.NewSequenceGenerator("pass")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithScheduling(sched),
		engine.WithDryRun(scenario.DryRun),
		engine.WithFallback(scenario.Fallback == nil || *scenario.Fallback),
	}
	if scenario.Window != "" {
		d, err := time.ParseDuration(scenario.Window)
		if err != nil {
			return nil, fmt.Errorf("window: %w", err)
		}
		opts = append(opts, engine.WithWindow(d))
	}
	h.engine = engine.New(st, planner.Func(h.plan),
		&recordingCalendar{inner: h.calendar, rec: h.calls},
		&recordingTasks{inner: h.tasks, rec: h.calls},
		opts...,
	)

	ctx := context.Background()
	result := NewResult()
	for i := range scenario.Passes {
		if err := h.runPass(ctx, i, &scenario.Passes[i], result); err != nil {
			return nil, fmt.Errorf("pass %d: %w", i, err)
		}
	}

	entries, err := st.ReadWindow(ctx, time.Time{}, 0)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	result.Entries = entries
	result.Calls = h.calls.all()
	result.Live["calendar"] = h.calendar.Len()
	result.Live["tasks"] = h.tasks.Len()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) runPass(ctx context.Context, index int, step *PassStep, result *Result) error {
	if step.Advance != "" {
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		h.clock.Advance(d)
	}

	h.step = step
	h.calendar.FailWith(failFunc(step.Fail, "calendar"))
	h.tasks.FailWith(failFunc(step.Fail, "tasks"))
	defer func() {
		h.calendar.FailWith(nil)
		h.tasks.FailWith(nil)
	}()

	mark := h.calls.len()
	report, err := h.engine.RunOnePass(ctx, step.Record)

	trace := PassTrace{
		Record: step.Record.ID,
		Error:  errorClass(err),
		Items:  []ItemTrace{},
		Calls:  h.calls.since(mark),
	}
	if report != nil {
		for _, it := range report.Items {
			trace.Items = append(trace.Items, ItemTrace{
				Index:       it.Index,
				Title:       it.Title,
				Outcome:     it.Outcome,
				Chain:       chainIfFallback(it.Chain),
				MemoryID:    it.MemoryID,
				Ref:         it.Ref,
				NeedsReview: it.NeedsReview,
			})
		}
	}
	result.Passes = append(result.Passes, trace)

	if step.Expect == nil {
		if err != nil {
			result.AddError(fmt.Sprintf("passes[%d]: unexpected error: %v", index, err))
		}
		return nil
	}
	if trace.Error != step.Expect.Error {
		result.AddError(fmt.Sprintf("passes[%d]: expected error class %q, got %q (%v)", index, step.Expect.Error, trace.Error, err))
	}
	got := make([]ir.Outcome, len(trace.Items))
	for i, it := range trace.Items {
		got[i] = it.Outcome
	}
	want := step.Expect.Outcomes
	if want == nil {
		want = []ir.Outcome{}
	}
	if !slices.Equal(got, want) {
		result.AddError(fmt.Sprintf("passes[%d]: expected outcomes %v, got %v", index, want, got))
	}
	return nil
}

// plan answers for the pass currently running.
func (h *Harness) plan(_ context.Context, _ ir.Record, _ memory.Snapshot) ([]byte, error) {
	step := h.step
	if step.PlannerError != "" {
		return nil, errors.New(step.PlannerError)
	}
	if s, ok := step.Plan.(string); ok {
		return []byte(s), nil
	}
	return planner.ToJSON(step.Plan)
}

// chainIfFallback keeps the decision chain only when it says more than
// the outcome does.
func chainIfFallback(chain []ir.Outcome) []ir.Outcome {
	if len(chain) < 2 {
		return nil
	}
	return chain
}

func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case engine.IsPlannerUnavailable(err):
		return ErrClassPlanner
	case engine.IsLockContention(err):
		return ErrClassLock
	case engine.IsHistoryError(err):
		return ErrClassHistory
	}
	return ErrClassOther
}

func failFunc(failures []Failure, name string) adapter.FailFunc {
	var mine []Failure
	for _, f := range failures {
		if f.Adapter == name {
			mine = append(mine, f)
		}
	}
	if len(mine) == 0 {
		return nil
	}
	return func(op string, ref ir.Ref, title string) error {
		for _, f := range mine {
			if f.Title != "" && f.Title != title {
				continue
			}
			if f.NotFound {
				return fmt.Errorf("%s %s: %w", op, ref, adapter.ErrNotFound)
			}
			return errors.New(f.Error)
		}
		return nil
	}
}
