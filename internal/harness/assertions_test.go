package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/ir"
)

var sampleCalls = []Call{
	{Op: "calendar.create", Ref: "evt-1", Title: "A"},
	{Op: "tasks.create", Ref: "task-1", Title: "B"},
	{Op: "calendar.update", Ref: "evt-1", Title: "A"},
	{Op: "calendar.create", Title: "C", Error: "boom"},
}

func TestAssertCallCount(t *testing.T) {
	assert.NoError(t, assertCallCount(sampleCalls, Assertion{Op: "calendar.create", Count: 2}))
	assert.NoError(t, assertCallCount(sampleCalls, Assertion{Op: "tasks.delete", Count: 0}))

	err := assertCallCount(sampleCalls, Assertion{Op: "tasks.create", Count: 3})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "1 calls", ae.Actual)
	assert.Contains(t, err.Error(), `error="boom"`)
}

func TestAssertCallOrder(t *testing.T) {
	assert.NoError(t, assertCallOrder(sampleCalls, Assertion{Ops: []string{"calendar.create", "calendar.update"}}))
	assert.NoError(t, assertCallOrder(sampleCalls, Assertion{Ops: []string{"tasks.create"}}))

	err := assertCallOrder(sampleCalls, Assertion{Ops: []string{"calendar.update", "tasks.create"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertCallOrder(sampleCalls, Assertion{Ops: []string{"calendar.delete"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing op: calendar.delete")
}

func TestAssertResourceCount(t *testing.T) {
	live := map[string]int{"calendar": 2}
	assert.NoError(t, assertResourceCount(live, Assertion{Adapter: "calendar", Count: 2}))
	assert.NoError(t, assertResourceCount(live, Assertion{Adapter: "tasks", Count: 0}))
	assert.Error(t, assertResourceCount(live, Assertion{Adapter: "calendar", Count: 1}))
}

func sampleEntries(t *testing.T) []map[string]any {
	t.Helper()
	deadline := time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC)
	entries, err := entryMaps([]ir.MemoryEntry{
		{Seq: 1, MemoryID: "aaa", RecordID: "r1", Outcome: ir.OutcomeCreate, Ref: "evt-1", Confidence: 0.9},
		{Seq: 2, MemoryID: "bbb", RecordID: "r1", Outcome: ir.OutcomeError, NeedsReview: true},
		{Seq: 3, MemoryID: "aaa", RecordID: "r2", Outcome: ir.OutcomeSkipDuplicate, Ref: "evt-1", Deadline: &deadline},
	})
	require.NoError(t, err)
	return entries
}

func TestAssertEntryCount(t *testing.T) {
	entries := sampleEntries(t)

	assert.NoError(t, assertEntryCount(entries, Assertion{Count: 3}))
	assert.NoError(t, assertEntryCount(entries, Assertion{Where: map[string]any{"memory_id": "aaa"}, Count: 2}))
	assert.NoError(t, assertEntryCount(entries, Assertion{Where: map[string]any{"record_id": "r1", "seq": 2}, Count: 1}))

	// needs_review is omitted from JSON when false; a false filter still matches.
	assert.NoError(t, assertEntryCount(entries, Assertion{Where: map[string]any{"needs_review": false}, Count: 2}))

	err := assertEntryCount(entries, Assertion{Where: map[string]any{"outcome": "CANCEL"}, Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outcome=CANCEL")
}

func TestAssertEntry(t *testing.T) {
	entries := sampleEntries(t)

	// The newest match wins.
	assert.NoError(t, assertEntry(entries, Assertion{
		Where:  map[string]any{"memory_id": "aaa"},
		Expect: map[string]any{"outcome": "SKIP_DUPLICATE", "deadline": "2026-01-15T17:00:00Z"},
	}))
	assert.NoError(t, assertEntry(entries, Assertion{
		Where:  map[string]any{"seq": 1},
		Expect: map[string]any{"confidence": 0.9, "ref": "evt-1"},
	}))

	err := assertEntry(entries, Assertion{
		Where:  map[string]any{"memory_id": "bbb"},
		Expect: map[string]any{"needs_review": false},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs_review=false")

	err = assertEntry(entries, Assertion{
		Where:  map[string]any{"memory_id": "zzz"},
		Expect: map[string]any{"outcome": "CREATE"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no matching entry")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Calls = sampleCalls
	result.Live["calendar"] = 1
	result.Entries = []ir.MemoryEntry{{Seq: 1, Outcome: ir.OutcomeCreate}}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertCallCount, Op: "calendar.create", Count: 2},
		{Type: AssertResourceCount, Adapter: "calendar", Count: 1},
		{Type: AssertEntryCount, Count: 5},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertion 2 (entry_count) failed")
	assert.Contains(t, errs[1], "unknown assertion type: bogus")

	assert.Empty(t, EvaluateAssertions(result, nil))
}
