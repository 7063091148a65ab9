package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/adapter"
	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/memory"
	"github.com/roach88/recon/internal/store"
	"github.com/roach88/recon/internal/testutil"
)

var (
	hkt      = time.FixedZone("HKT", 8*3600)
	passTime = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	testRec  = ir.Record{
		ID:      "msg-1",
		Subject: "Seminar next week",
		From:    "dept@example.edu",
		Link:    "https://mail.example.com/msg-1",
	}
)

// scriptedPlanner returns its plans in order and repeats the last one.
type scriptedPlanner struct {
	mu    sync.Mutex
	plans []string
	err   error
	snaps []memory.Snapshot
}

func (p *scriptedPlanner) Plan(_ context.Context, _ ir.Record, snap memory.Snapshot) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
	if p.err != nil {
		return nil, p.err
	}
	plan := p.plans[0]
	if len(p.plans) > 1 {
		p.plans = p.plans[1:]
	}
	return []byte(plan), nil
}

type fixture struct {
	history *store.MemoryStore
	cal     *adapter.MemoryCalendar
	tasks   *adapter.MemoryTasks
	clock   *testutil.FixedClock
	planner *scriptedPlanner
	engine  *Engine
}

func newFixture(t *testing.T, opts ...EngineOption) *fixture {
	t.Helper()
	f := &fixture{
		history: store.NewMemoryStore(),
		cal:     adapter.NewMemoryCalendar(),
		tasks:   adapter.NewMemoryTasks(),
		clock:   testutil.NewFixedClock(passTime),
		planner: &scriptedPlanner{},
	}
	sched := DefaultScheduling()
	sched.Location = hkt
	base := []EngineOption{
		WithClock(f.clock),
		WithPassIDs(testutil.NewSequenceGenerator("pass")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithScheduling(sched),
	}
	f.engine = New(f.history, f.planner, f.cal, f.tasks, append(base, opts...)...)
	return f
}

func (f *fixture) run(t *testing.T, plan string) *PassReport {
	t.Helper()
	f.planner.plans = []string{plan}
	report, err := f.engine.RunOnePass(context.Background(), testRec)
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

func outcomes(r *PassReport) []ir.Outcome {
	out := make([]ir.Outcome, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Outcome
	}
	return out
}

const seminarPlan = `{
  "classification": {"category": "ACTIONABLE", "priority": "HIGH"},
  "items": [{
    "kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "Seminar",
    "start": "2026-01-11T09:30:00+08:00", "end": "2026-01-11T10:30:00+08:00"
  }]
}`

func TestScenarioA_CreateOnEmptyMemory(t *testing.T) {
	f := newFixture(t)
	report := f.run(t, seminarPlan)

	require.Len(t, report.Items, 1)
	item := report.Items[0]
	assert.Equal(t, ir.OutcomeCreate, item.Outcome)
	assert.Equal(t, ir.Ref("evt-1"), item.Ref)
	assert.Equal(t, "pass-1", report.PassID)

	entries := f.history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, item.Key, entries[0].Key)
	assert.Equal(t, item.Key.Short(), entries[0].MemoryID)
	assert.Equal(t, ir.Ref("evt-1"), entries[0].Ref)
	assert.Equal(t, int64(1), item.Seq)

	spec, ok := f.cal.Event("evt-1")
	require.True(t, ok)
	assert.Equal(t, []int{1440, 120, 30}, spec.Reminders, "HIGH priority reminders")
	assert.Equal(t, time.Hour, spec.End.Sub(spec.Start))
}

func TestScenarioB_ResubmitIsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.run(t, seminarPlan)
	f.clock.Advance(15 * time.Minute)

	report := f.run(t, seminarPlan)
	assert.Equal(t, []ir.Outcome{ir.OutcomeSkipDuplicate}, outcomes(report))
	assert.Equal(t, ir.Ref("evt-1"), report.Items[0].Ref, "duplicate carries the ref forward")
	assert.Len(t, f.cal.Calls(), 1, "no new adapter calls")
	assert.Len(t, f.history.Entries(), 2)
}

func TestIdempotentAcrossRephrasing(t *testing.T) {
	f := newFixture(t)
	f.run(t, seminarPlan)

	rephrased := `{"items": [{
	  "kind": "CALENDAR_EVENT", "operation": "CREATE", "title": "  SEMINAR ",
	  "start": "2026-01-11T01:30:00Z", "end": "2026-01-11T02:30:00Z"
	}]}`
	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Hour)
		report := f.run(t, rephrased)
		assert.Equal(t, []ir.Outcome{ir.OutcomeSkipDuplicate}, outcomes(report))
	}
	assert.Equal(t, 1, f.cal.Len())
	assert.Len(t, f.cal.Calls(), 1)
}

func TestKeySensitivity(t *testing.T) {
	f := newFixture(t)
	f.run(t, seminarPlan)

	moved := `{"items": [{
	  "kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "Seminar",
	  "start": "2026-01-12T09:30:00+08:00", "end": "2026-01-12T10:30:00+08:00"
	}]}`
	report := f.run(t, moved)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCreate}, outcomes(report))
	assert.Equal(t, ir.Ref("evt-2"), report.Items[0].Ref)

	elsewhere := `{"items": [{
	  "kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "Seminar", "location": "Room 7",
	  "start": "2026-01-11T09:30:00+08:00", "end": "2026-01-11T10:30:00+08:00"
	}]}`
	report = f.run(t, elsewhere)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCreate}, outcomes(report))
	assert.Equal(t, 3, f.cal.Len())
}

func TestWindowBoundedness(t *testing.T) {
	f := newFixture(t, WithWindow(30*24*time.Hour))
	f.run(t, seminarPlan)

	f.clock.Advance(30 * 24 * time.Hour)
	report := f.run(t, seminarPlan)
	assert.Equal(t, ir.OutcomeSkipDuplicate, report.Items[0].Outcome, "window bound is inclusive")

	f.clock.Advance(30*24*time.Hour + time.Second)
	report = f.run(t, seminarPlan)
	assert.Equal(t, ir.OutcomeCreate, report.Items[0].Outcome, "entries outside the window are forgotten")
	assert.Equal(t, 2, f.cal.Len())
}

func TestScenarioC_FallbackToTask(t *testing.T) {
	f := newFixture(t)
	plan := `{"items": [{"kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "Deadline reminder", "deadline": "2026-02-01"}]}`

	report := f.run(t, plan)
	require.Len(t, report.Items, 1)
	item := report.Items[0]
	assert.Equal(t, []ir.Outcome{ir.OutcomeSkipNoTime, ir.FallbackOutcome(ir.OutcomeCreate)}, item.Chain)
	assert.Equal(t, ir.Outcome("FALLBACK_TASK_CREATE"), item.Outcome)
	assert.Equal(t, ir.Ref("task-1"), item.Ref)
	assert.NotEmpty(t, item.DerivedKey)
	assert.NotEqual(t, item.Key, item.DerivedKey)
	assert.Empty(t, f.cal.Calls(), "zero calendar adapter calls")

	task, ok := f.tasks.Task("task-1")
	require.True(t, ok)
	require.NotNil(t, task.Due)
	assert.True(t, task.Due.Equal(time.Date(2026, 2, 1, 17, 0, 0, 0, hkt)), "date-only deadline lands at 17:00 local")

	entries := f.history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, item.DerivedKey, entries[0].DerivedKey)

	// The next pass sees the fallback under the original key.
	report = f.run(t, plan)
	assert.Equal(t, []ir.Outcome{ir.OutcomeSkipDuplicate}, outcomes(report))
	assert.Equal(t, ir.Ref("task-1"), report.Items[0].Ref)
	assert.Equal(t, 1, f.tasks.Len())

	// A planner that proposes the task directly also dedupes.
	direct := `{"items": [{"kind": "DEADLINE_TASK", "operation": "CREATE", "title": "Deadline reminder", "deadline": "2026-02-01"}]}`
	report = f.run(t, direct)
	assert.Equal(t, []ir.Outcome{ir.OutcomeSkipDuplicate}, outcomes(report))
	assert.Len(t, f.tasks.Calls(), 1)
}

func TestFallbackDisabled(t *testing.T) {
	f := newFixture(t, WithFallback(false))
	report := f.run(t, `{"items": [{"kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "Sometime"}]}`)

	item := report.Items[0]
	assert.Equal(t, ir.OutcomeSkipNoTime, item.Outcome)
	assert.True(t, item.NeedsReview)
	assert.Empty(t, f.tasks.Calls())
	assert.Empty(t, f.cal.Calls())
}

func TestScenarioD_CancelExplicitRef(t *testing.T) {
	f := newFixture(t)
	f.tasks.Seed("T123", adapter.TaskSpec{Title: "Renew passport"})

	report := f.run(t, `{"items": [{"kind": "DEADLINE_TASK", "operation": "CANCEL", "title": "Renew passport", "target": {"ref": "T123"}}]}`)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCancel}, outcomes(report))
	assert.Equal(t, []adapter.Call{{Op: "tasks.delete", Ref: "T123"}}, f.tasks.Calls())

	entries := f.history.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Live(), "cancelled ref is not live")
}

func TestPartialFailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.cal.FailWith(func(op string, _ ir.Ref, title string) error {
		if title == "two" {
			return errors.New("rate limited")
		}
		return nil
	})
	plan := `{"items": [
	  {"kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "one", "start": "2026-01-11T09:00:00+08:00"},
	  {"kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "two", "start": "2026-01-11T10:00:00+08:00"},
	  {"kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "three", "start": "2026-01-11T11:00:00+08:00"}
	]}`

	report := f.run(t, plan)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCreate, ir.OutcomeError, ir.OutcomeCreate}, outcomes(report))
	assert.Equal(t, 1, report.Failed())

	entries := f.history.Entries()
	require.Len(t, entries, 3)
	assert.True(t, entries[1].NeedsReview)
	assert.Contains(t, entries[1].Error, "rate limited")
	assert.Empty(t, entries[1].Ref)

	// The failed item is retried on the next pass under the same key.
	f.cal.FailWith(nil)
	report = f.run(t, plan)
	assert.Equal(t, []ir.Outcome{ir.OutcomeSkipDuplicate, ir.OutcomeCreate, ir.OutcomeSkipDuplicate}, outcomes(report))
	assert.Equal(t, 3, f.cal.Len())
}

func TestDuplicateWithinOnePass(t *testing.T) {
	f := newFixture(t)
	plan := `{"items": [
	  {"kind": "DEADLINE_TASK", "operation": "CREATE", "title": "Pay invoice", "deadline": "2026-01-20T12:00:00+08:00"},
	  {"kind": "DEADLINE_TASK", "operation": "CREATE", "title": "pay  invoice", "deadline": "2026-01-20T04:00:00Z"}
	]}`
	report := f.run(t, plan)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCreate, ir.OutcomeSkipDuplicate}, outcomes(report))
	assert.Equal(t, 1, f.tasks.Len())
}

func TestUpdateAndCancelByMemoryID(t *testing.T) {
	f := newFixture(t)
	first := f.run(t, seminarPlan)
	memID := first.Items[0].MemoryID

	update := `{"items": [{
	  "kind": "SCHEDULED_EVENT", "operation": "UPDATE", "title": "Seminar (moved)",
	  "start": "2026-01-11T14:00:00+08:00", "target": {"memory_id": "` + memID + `"}
	}]}`
	report := f.run(t, update)
	assert.Equal(t, []ir.Outcome{ir.OutcomeUpdate}, outcomes(report))
	assert.Equal(t, ir.Ref("evt-1"), report.Items[0].Ref)
	spec, _ := f.cal.Event("evt-1")
	assert.Equal(t, "Seminar (moved)", spec.Title)

	cancel := `{"items": [{
	  "kind": "SCHEDULED_EVENT", "operation": "CANCEL", "title": "Seminar",
	  "start": "2026-01-11T09:30:00+08:00", "end": "2026-01-11T10:30:00+08:00",
	  "memory_id": "` + memID + `"
	}]}`
	report = f.run(t, cancel)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCancel}, outcomes(report))
	assert.Equal(t, 0, f.cal.Len())

	// The original key now resolves to the cancellation, so a fresh CREATE
	// goes through.
	report = f.run(t, seminarPlan)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCreate}, outcomes(report))
}

func TestCancelByMemoryIDUnderDifferentKey(t *testing.T) {
	f := newFixture(t)
	first := f.run(t, seminarPlan)
	memID := first.Items[0].MemoryID

	cancel := `{"items": [{
	  "kind": "SCHEDULED_EVENT", "operation": "CANCEL", "title": "Seminar cancelled",
	  "target": {"memory_id": "` + memID + `"}
	}]}`
	report := f.run(t, cancel)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCancel}, outcomes(report))
	assert.NotEqual(t, memID, report.Items[0].MemoryID)
	assert.Equal(t, 0, f.cal.Len())

	// The seminar is proposed again: its own key must see the cancellation.
	report = f.run(t, seminarPlan)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCreate}, outcomes(report))
	assert.Equal(t, ir.Ref("evt-2"), report.Items[0].Ref)
	assert.Equal(t, 1, f.cal.Len())
}

func TestCancelAfterUpdateUnderNewKey(t *testing.T) {
	f := newFixture(t)
	first := f.run(t, seminarPlan)

	moved := `{"items": [{
	  "kind": "SCHEDULED_EVENT", "operation": "UPDATE", "title": "Seminar (moved)",
	  "start": "2026-01-11T14:00:00+08:00", "target": {"memory_id": "` + first.Items[0].MemoryID + `"}
	}]}`
	updated := f.run(t, moved)
	require.Equal(t, []ir.Outcome{ir.OutcomeUpdate}, outcomes(updated))

	report := f.run(t, `{"items": [{"kind": "SCHEDULED_EVENT", "operation": "CANCEL", "title": "Seminar", "target": {"ref": "evt-1"}}]}`)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCancel}, outcomes(report))

	// Neither the original nor the moved proposal is blocked by a dead ref.
	report = f.run(t, moved)
	assert.Equal(t, []ir.Outcome{ir.OutcomeSkipNoTarget}, outcomes(report))
	report = f.run(t, seminarPlan)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCreate}, outcomes(report))
}

func TestUpdateTargetsFallbackTask(t *testing.T) {
	f := newFixture(t)
	first := f.run(t, `{"items": [{"kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "Submit form", "deadline": "2026-02-01"}]}`)
	memID := first.Items[0].MemoryID

	report := f.run(t, `{"items": [{"kind": "SCHEDULED_EVENT", "operation": "UPDATE", "title": "Submit form", "start": "2026-02-01T10:00:00+08:00", "target": {"memory_id": "`+memID+`"}}]}`)
	assert.Equal(t, []ir.Outcome{ir.OutcomeUpdate}, outcomes(report))
	assert.Equal(t, []adapter.Call{
		{Op: "tasks.create", Title: "Submit form"},
		{Op: "tasks.update", Ref: "task-1", Title: "Submit form"},
	}, f.tasks.Calls(), "a fallback entry's ref belongs to the task adapter")
	assert.Empty(t, f.cal.Calls())
}

func TestTargetResolutionOutcomes(t *testing.T) {
	f := newFixture(t)
	plan := `{"items": [
	  {"kind": "SCHEDULED_EVENT", "operation": "UPDATE", "title": "Unknown", "start": "2026-01-11T09:00:00+08:00"},
	  {"kind": "SCHEDULED_EVENT", "operation": "CANCEL", "title": "Gone", "target": {"ref": "evt-99"}},
	  {"kind": "DEADLINE_TASK", "operation": "UPDATE", "title": "Stale", "target": {"memory_id": "abcdefabcdef"}}
	]}`
	report := f.run(t, plan)
	assert.Equal(t, []ir.Outcome{ir.OutcomeSkipNoTarget, ir.OutcomeSkipNotFound, ir.OutcomeSkipNoTarget}, outcomes(report))
	assert.Equal(t, ir.Ref("evt-99"), report.Items[1].Ref)
	assert.False(t, report.Items[1].NeedsReview)
}

func TestNoteDiscardAndSkip(t *testing.T) {
	f := newFixture(t)
	plan := `{"items": [
	  {"kind": "NOTE", "operation": "CREATE", "title": "FYI", "memo": "newsletter cadence is weekly"},
	  {"kind": "DISCARD", "operation": "CREATE", "title": "Promo"},
	  {"kind": "DEADLINE_TASK", "operation": "SKIP", "title": "Maybe later"}
	]}`
	report := f.run(t, plan)
	assert.Equal(t, []ir.Outcome{ir.OutcomeRecordOnly, ir.OutcomeNone, ir.OutcomeSkip}, outcomes(report))
	assert.Empty(t, f.cal.Calls())
	assert.Empty(t, f.tasks.Calls())

	entries := f.history.Entries()
	require.Len(t, entries, 2, "DISCARD leaves no entry")
	assert.Equal(t, "newsletter cadence is weekly", entries[0].Memo)
	assert.Zero(t, report.Items[1].Seq)

	// The memo reaches the planner on the next pass.
	f.run(t, `{"items": []}`)
	snap := f.planner.snaps[len(f.planner.snaps)-1]
	assert.Contains(t, snap.Memos, "newsletter cadence is weekly")
}

func TestZeroItemsWritesSentinel(t *testing.T) {
	f := newFixture(t)
	report := f.run(t, `{"classification": {"category": "PROMO"}, "assistant_memo": "nothing to do", "items": []}`)
	assert.Empty(t, report.Items)
	assert.Equal(t, ir.CategoryPromo, report.Classification.Category)

	entries := f.history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ir.OutcomeNoItems, entries[0].Outcome)
	assert.Equal(t, NoItemsTitle, entries[0].Title)
	assert.Equal(t, "msg-1", entries[0].RecordID)
	assert.Empty(t, entries[0].Key)
}

func TestDiscardOnlyPassWritesSentinel(t *testing.T) {
	f := newFixture(t)
	report := f.run(t, `{"items": [
	  {"kind": "DISCARD", "title": "Promo"},
	  {"kind": "DISCARD", "title": "Newsletter"}
	]}`)
	assert.Equal(t, []ir.Outcome{ir.OutcomeNone, ir.OutcomeNone}, outcomes(report))

	entries := f.history.Entries()
	require.Len(t, entries, 1, "the record is still marked as seen")
	assert.Equal(t, ir.OutcomeNoItems, entries[0].Outcome)
	assert.Equal(t, "msg-1", entries[0].RecordID)
	assert.Empty(t, f.cal.Calls())
}

func TestDryRun(t *testing.T) {
	f := newFixture(t, WithDryRun(true))
	report := f.run(t, seminarPlan)
	assert.True(t, report.DryRun)
	assert.Equal(t, []ir.Outcome{ir.DryRunOutcome(ir.OpCreate)}, outcomes(report))
	assert.Empty(t, report.Items[0].Ref)
	assert.Empty(t, f.cal.Calls())
	assert.Len(t, f.history.Entries(), 1)

	// A dry run leaves no memory behind: a real pass still creates.
	real := New(f.history, f.planner, f.cal, f.tasks, WithClock(f.clock), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	f.planner.plans = []string{seminarPlan}
	live, err := real.RunOnePass(context.Background(), testRec)
	require.NoError(t, err)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCreate}, outcomes(live))
}

func TestMissingAdapter(t *testing.T) {
	f := newFixture(t)
	f.engine.tasks = nil
	report := f.run(t, `{"items": [{"kind": "DEADLINE_TASK", "operation": "CREATE", "title": "File taxes"}]}`)
	assert.Equal(t, []ir.Outcome{ir.OutcomeSkipAdapterUnavailable}, outcomes(report))
}

func TestPlannerUnavailableAbortsBeforeMutation(t *testing.T) {
	f := newFixture(t)
	f.planner.err = errors.New("503 from planner")

	report, err := f.engine.RunOnePass(context.Background(), testRec)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, IsPlannerUnavailable(err))
	assert.Empty(t, f.history.Entries())

	f.planner.err = nil
	f.planner.plans = []string{"I could not decide, sorry."}
	_, err = f.engine.RunOnePass(context.Background(), testRec)
	assert.True(t, IsPlannerUnavailable(err))
	assert.Empty(t, f.history.Entries())
	assert.Empty(t, f.cal.Calls())
}

func TestLockContention(t *testing.T) {
	locker := NewMutexLocker()
	f := newFixture(t, WithLocker(locker), WithLockTimeout(20*time.Millisecond))

	release, err := locker.Acquire(context.Background(), "other-pass")
	require.NoError(t, err)

	f.planner.plans = []string{seminarPlan}
	report, err := f.engine.RunOnePass(context.Background(), testRec)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, IsLockContention(err))
	assert.Empty(t, f.planner.snaps, "planner never consulted")
	assert.Empty(t, f.history.Entries())

	release()
	f.run(t, seminarPlan)
	assert.Len(t, f.history.Entries(), 1)
}

func TestLeaseLockerAcrossEngines(t *testing.T) {
	f := newFixture(t)
	holder := NewLeaseLocker(f.history, time.Minute, 5*time.Millisecond)
	release, err := holder.Acquire(context.Background(), "host-a")
	require.NoError(t, err)

	f.engine.locker = NewLeaseLocker(f.history, time.Minute, 5*time.Millisecond)
	f.engine.lockTimeout = 30 * time.Millisecond
	f.planner.plans = []string{seminarPlan}
	_, err = f.engine.RunOnePass(context.Background(), testRec)
	assert.True(t, IsLockContention(err))

	release()
	f.run(t, seminarPlan)
}

func TestHistoryAppendFailure(t *testing.T) {
	f := newFixture(t)
	f.history.FailAppend = errors.New("disk full")

	f.planner.plans = []string{seminarPlan}
	report, err := f.engine.RunOnePass(context.Background(), testRec)
	require.Error(t, err)
	assert.True(t, IsHistoryError(err))
	require.NotNil(t, report)
	require.Len(t, report.Items, 1, "the applied item is still reported")
	assert.Equal(t, ir.OutcomeCreate, report.Items[0].Outcome)
}

func TestEventPayload(t *testing.T) {
	sched := DefaultScheduling()
	sched.Location = hkt
	sched.TitlePrefix = "[Email]"
	f := newFixture(t, WithScheduling(sched))

	plan := `{"classification": {"priority": "LOW"}, "items": [
	  {"kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "Call", "start": "2026-01-11T09:00", "body": "Dial in", "memo": "bring notes"},
	  {"kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "Offsite", "start": "2026-01-20", "end": "2026-01-21"},
	  {"kind": "SCHEDULED_EVENT", "operation": "CREATE", "title": "Holiday", "all_day": true, "deadline": "2026-01-25"}
	]}`
	report := f.run(t, plan)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCreate, ir.OutcomeCreate, ir.OutcomeCreate}, outcomes(report))

	call, _ := f.cal.Event("evt-1")
	assert.Equal(t, "[Email] Call", call.Title)
	assert.True(t, call.Start.Equal(time.Date(2026, 1, 11, 9, 0, 0, 0, hkt)), "zoneless start read in the configured zone")
	assert.Equal(t, DefaultEventDuration, call.End.Sub(call.Start))
	assert.Equal(t, []int{30}, call.Reminders)
	assert.Equal(t, "Dial in\n\nNote: bring notes\n\n--\nSubject: Seminar next week\nFrom: dept@example.edu\nLink: https://mail.example.com/msg-1", call.Description)

	offsite, _ := f.cal.Event("evt-2")
	assert.True(t, offsite.AllDay)
	assert.True(t, offsite.Start.Equal(time.Date(2026, 1, 20, 0, 0, 0, 0, hkt)))
	assert.True(t, offsite.End.Equal(time.Date(2026, 1, 22, 0, 0, 0, 0, hkt)), "end day is inclusive in the plan, exclusive in the payload")

	holiday, _ := f.cal.Event("evt-3")
	assert.True(t, holiday.Start.Equal(time.Date(2026, 1, 25, 0, 0, 0, 0, hkt)), "all-day event takes its day from the deadline")
	assert.Equal(t, 24*time.Hour, holiday.End.Sub(holiday.Start))
}

func TestSubmitRunLoop(t *testing.T) {
	f := newFixture(t)
	f.planner.plans = []string{seminarPlan}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	report, err := f.engine.Submit(ctx, testRec)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeCreate, report.Items[0].Outcome)

	report, err = f.engine.Submit(ctx, testRec)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeSkipDuplicate, report.Items[0].Outcome)

	f.engine.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop")
	}
	_, err = f.engine.Submit(context.Background(), testRec)
	assert.ErrorIs(t, err, ErrStopped)
}

// gatedPlanner blocks every pass until release is closed.
type gatedPlanner struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *gatedPlanner) Plan(ctx context.Context, _ ir.Record, _ memory.Snapshot) ([]byte, error) {
	p.once.Do(func() { close(p.entered) })
	select {
	case <-p.release:
		return []byte(seminarPlan), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSubmitDoesNotQueueBehindRunningPass(t *testing.T) {
	f := newFixture(t, WithLockTimeout(30*time.Millisecond))
	gate := &gatedPlanner{entered: make(chan struct{}), release: make(chan struct{})}
	f.engine.planner = gate

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	type result struct {
		report *PassReport
		err    error
	}
	first := make(chan result, 1)
	go func() {
		r, err := f.engine.Submit(ctx, testRec)
		first <- result{r, err}
	}()

	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never reached the planner")
	}

	_, err := f.engine.Submit(ctx, ir.Record{ID: "msg-2", Subject: "Concurrent"})
	require.Error(t, err)
	assert.True(t, IsLockContention(err))
	assert.Zero(t, f.engine.Pending(), "the rejected pass was not queued")

	close(gate.release)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, []ir.Outcome{ir.OutcomeCreate}, outcomes(got.report))

	// The slot is free again once the running pass finishes.
	report, err := f.engine.Submit(ctx, testRec)
	require.NoError(t, err)
	assert.Equal(t, []ir.Outcome{ir.OutcomeSkipDuplicate}, outcomes(report))
	assert.Len(t, f.history.Entries(), 2)

	f.engine.Stop()
	<-done
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, WithMetrics(NewMetrics(reg, "recon")))
	f.run(t, seminarPlan)
	f.run(t, seminarPlan)

	families, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += "/" + lp.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				got[name] = c.GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, got["recon_passes_total/ok"])
	assert.Equal(t, 1.0, got["recon_outcomes_total/CREATE"])
	assert.Equal(t, 1.0, got["recon_outcomes_total/SKIP_DUPLICATE"])
}

func TestSnapshotHidesRefs(t *testing.T) {
	f := newFixture(t)
	first := f.run(t, seminarPlan)
	f.run(t, `{"items": []}`)

	snap := f.planner.snaps[1]
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, first.Items[0].MemoryID, snap.Entries[0].MemoryID)
	assert.True(t, snap.Entries[0].Live)
}
