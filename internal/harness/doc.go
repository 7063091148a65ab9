// Package harness runs reconciliation scenarios described in YAML.
//
// A scenario drives the real engine through a sequence of passes against a
// fresh in-memory SQLite history and in-memory adapters, on a fixed clock.
// Each pass names a record, the raw plan the planner returns for it, and
// optionally the adapter failures to inject.
//
// # Scenario Format
//
//	name: untimed_event_fallback
//	description: "An untimed event becomes a deadline task"
//	timezone: Asia/Hong_Kong
//	now: 2026-01-10T08:00:00Z
//	seed:
//	  tasks:
//	    - {ref: T123, title: Renew passport}
//	passes:
//	  - record: {id: msg-1, subject: Deadline}
//	    plan:
//	      items:
//	        - {kind: SCHEDULED_EVENT, operation: CREATE, title: Submit form, deadline: "2026-02-01"}
//	    expect:
//	      outcomes: [FALLBACK_TASK_CREATE]
//	  - advance: 1h
//	    record: {id: msg-1, subject: Deadline}
//	    plan: ...
//	assertions:
//	  - type: call_count
//	    op: tasks.create
//	    count: 1
//
// # Assertion Types
//
//   - call_count: an adapter operation happened exactly count times
//   - call_order: operations appear in this relative order
//   - entry_count: count history entries match where
//   - entry: the newest history entry matching where has the expect fields
//   - resource_count: the adapter holds count live resources
//
// # Golden Traces
//
// RunWithGolden compares the per-pass trace (items, outcomes, memory ids,
// adapter calls) against testdata/scenarios/golden/<name>.golden, the same
// layout recon test uses. Regenerate with:
//
//	go test ./internal/harness -update
package harness
