package engine

import (
	"sort"
	"time"

	"github.com/roach88/recon/internal/ir"
)

// ItemResult is what happened to one proposed item.
//
// Chain lists the outcomes in the order they were decided: a fallback
// yields [SKIP_NO_TIME, FALLBACK_TASK_<derived>]. Seq is zero when nothing
// was appended (DISCARD).
type ItemResult struct {
	Index       int          `json:"index"`
	Kind        ir.Kind      `json:"kind"`
	Requested   ir.Operation `json:"requested"`
	Outcome     ir.Outcome   `json:"outcome"`
	Chain       []ir.Outcome `json:"chain,omitempty"`
	Key         ir.Key       `json:"key,omitempty"`
	MemoryID    string       `json:"memory_id,omitempty"`
	DerivedKey  ir.Key       `json:"derived_key,omitempty"`
	Ref         ir.Ref       `json:"ref,omitempty"`
	Title       string       `json:"title"`
	NeedsReview bool         `json:"needs_review,omitempty"`
	Error       string       `json:"error,omitempty"`
	Seq         int64        `json:"seq,omitempty"`
}

// PassReport summarizes one pass.
type PassReport struct {
	PassID         string            `json:"pass_id"`
	RecordID       string            `json:"record_id"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	DryRun         bool              `json:"dry_run,omitempty"`
	Classification ir.Classification `json:"classification"`
	AssistantMemo  string            `json:"assistant_memo,omitempty"`
	Warnings       []string          `json:"warnings"`
	Items          []ItemResult      `json:"items"`
}

// Counts tallies final outcomes.
func (r *PassReport) Counts() map[ir.Outcome]int {
	counts := make(map[ir.Outcome]int)
	for _, it := range r.Items {
		counts[it.Outcome]++
	}
	return counts
}

// Outcomes lists the distinct final outcomes in sorted order.
func (r *PassReport) Outcomes() []ir.Outcome {
	counts := r.Counts()
	out := make([]ir.Outcome, 0, len(counts))
	for o := range counts {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Failed reports how many items ended in ERROR.
func (r *PassReport) Failed() int {
	return r.Counts()[ir.OutcomeError]
}
