package ir

import "time"

// Ref is an opaque reference to an external resource, owned by the adapter
// that produced it.
type Ref string

// Key is the idempotency key of a proposal: 64 lowercase hex characters.
type Key string

// ShortIDLen is the length of the short memory id shown to the planner.
const ShortIDLen = 12

// Short returns the memory id form of the key.
func (k Key) Short() string {
	if len(k) <= ShortIDLen {
		return string(k)
	}
	return string(k[:ShortIDLen])
}

// MemoryEntry is one append-only history row: the outcome of applying one
// proposal during one pass.
//
// Seq is assigned by the history store in append order. DerivedKey is set
// when the fallback policy reconciled a derived task under its own key.
type MemoryEntry struct {
	Seq         int64      `json:"seq"`
	Key         Key        `json:"key"`
	MemoryID    string     `json:"memory_id"`
	DerivedKey  Key        `json:"derived_key,omitempty"`
	PassID      string     `json:"pass_id"`
	RecordID    string     `json:"record_id"`
	ItemIndex   int        `json:"item_index"`
	Kind        Kind       `json:"kind"`
	Requested   Operation  `json:"requested"`
	Outcome     Outcome    `json:"outcome"`
	Ref         Ref        `json:"ref,omitempty"`
	Title       string     `json:"title"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	AllDay      bool       `json:"all_day,omitempty"`
	Location    string     `json:"location,omitempty"`
	NeedsReview bool       `json:"needs_review,omitempty"`
	Confidence  float64    `json:"confidence"`
	Memo        string     `json:"memo,omitempty"`
	Error       string     `json:"error,omitempty"`
	ObservedAt  time.Time  `json:"observed_at"`
}

// Live reports whether the entry still points at an existing external
// resource as far as history knows.
func (e MemoryEntry) Live() bool {
	return e.Ref != "" && !e.Outcome.Terminal() && !e.Outcome.IsDryRun()
}

// Newer reports whether e supersedes other under last-write-wins:
// later ObservedAt first, then later append order.
func (e MemoryEntry) Newer(other MemoryEntry) bool {
	if !e.ObservedAt.Equal(other.ObservedAt) {
		return e.ObservedAt.After(other.ObservedAt)
	}
	return e.Seq > other.Seq
}
