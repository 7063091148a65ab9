package memory

import (
	"time"

	"github.com/roach88/recon/internal/ir"
)

// Snapshot limits when handing memory to the planner.
const (
	DefaultSnapshotEntries = 600
	DefaultSnapshotMemos   = 120
)

// SnapshotEntry is the planner-facing view of one remembered proposal.
// Adapter refs are not exposed; the planner cross-references by MemoryID.
type SnapshotEntry struct {
	MemoryID string     `json:"memory_id"`
	Kind     ir.Kind    `json:"kind"`
	Outcome  ir.Outcome `json:"outcome"`
	Title    string     `json:"title"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
	Location string     `json:"location,omitempty"`
	Live     bool       `json:"live"`
}

// Snapshot is what the planner sees of history.
type Snapshot struct {
	Entries []SnapshotEntry `json:"entries"`
	Memos   []string        `json:"memos"`
}

// Snapshot renders the newest entries and memo hints for the planner.
func (ix *Index) Snapshot(maxEntries, maxMemos int) Snapshot {
	latest := ix.Latest(maxEntries)
	snap := Snapshot{
		Entries: make([]SnapshotEntry, 0, len(latest)),
		Memos:   []string{},
	}
	for _, e := range latest {
		snap.Entries = append(snap.Entries, SnapshotEntry{
			MemoryID: e.MemoryID,
			Kind:     e.Kind,
			Outcome:  e.Outcome,
			Title:    e.Title,
			Start:    e.Start,
			End:      e.End,
			Deadline: e.Deadline,
			Location: e.Location,
			Live:     e.Live(),
		})
		if e.Memo != "" && len(snap.Memos) < maxMemos {
			snap.Memos = append(snap.Memos, e.Memo)
		}
	}
	return snap
}
