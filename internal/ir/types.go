package ir

import "time"

// Signal is an explicit classification hint attached to a Record by the
// extractor. It replaces free-form label strings.
type Signal string

const (
	SignalMassMail    Signal = "MASS_MAIL"
	SignalHasDeadline Signal = "HAS_DEADLINE"
	SignalHasMeeting  Signal = "HAS_MEETING"
	SignalReply       Signal = "REPLY"
	SignalAttachment  Signal = "ATTACHMENT"
)

// Valid reports whether s is a known signal.
func (s Signal) Valid() bool {
	switch s {
	case SignalMassMail, SignalHasDeadline, SignalHasMeeting, SignalReply, SignalAttachment:
		return true
	}
	return false
}

// Record is one semi-structured source record (an email, a message).
// It is immutable once handed to the engine.
type Record struct {
	ID         string    `json:"id" yaml:"id"`
	ReceivedAt time.Time `json:"received_at" yaml:"received_at"`
	Subject    string    `json:"subject" yaml:"subject"`
	From       string    `json:"from" yaml:"from"`
	Body       string    `json:"body" yaml:"body"`
	Link       string    `json:"link,omitempty" yaml:"link,omitempty"`
	Signals    []Signal  `json:"signals,omitempty" yaml:"signals,omitempty"`
}

// HasSignal reports whether the record carries s.
func (r Record) HasSignal(s Signal) bool {
	for _, sig := range r.Signals {
		if sig == s {
			return true
		}
	}
	return false
}

// Category is the planner's overall classification of a record.
type Category string

const (
	CategoryActionable Category = "ACTIONABLE"
	CategoryInfo       Category = "INFO"
	CategoryPromo      Category = "PROMO"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryActionable || c == CategoryInfo || c == CategoryPromo
}

// Priority drives reminder lead times on scheduled events.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Classification is the record-level verdict of a plan.
type Classification struct {
	Category  Category `json:"category"`
	Priority  Priority `json:"priority"`
	MassMail  bool     `json:"mass_mail"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// Kind is the kind of follow-on action a proposal describes.
type Kind string

const (
	KindScheduledEvent Kind = "SCHEDULED_EVENT"
	KindDeadlineTask   Kind = "DEADLINE_TASK"
	KindNote           Kind = "NOTE"
	KindDiscard        Kind = "DISCARD"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindScheduledEvent, KindDeadlineTask, KindNote, KindDiscard:
		return true
	}
	return false
}

// Operation is the mutation a proposal requests.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpCancel Operation = "CANCEL"
	OpSkip   Operation = "SKIP"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpCancel, OpSkip:
		return true
	}
	return false
}

// Target names the resource an UPDATE or CANCEL applies to.
//
// Ref is an explicit adapter reference. MemoryID cross-references an earlier
// proposal by its key or short memory id.
type Target struct {
	Ref      Ref    `json:"ref,omitempty"`
	MemoryID string `json:"memory_id,omitempty"`
}

// Empty reports whether the target names nothing.
func (t Target) Empty() bool {
	return t.Ref == "" && t.MemoryID == ""
}

// ProposedItem is one normalized planner proposal. Only the plan validator
// constructs these from planner output.
type ProposedItem struct {
	Index       int        `json:"index"`
	Kind        Kind       `json:"kind"`
	Operation   Operation  `json:"operation"`
	Title       string     `json:"title"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	AllDay      bool       `json:"all_day,omitempty"`
	Location    string     `json:"location,omitempty"`
	Body        string     `json:"body,omitempty"`
	Confidence  float64    `json:"confidence"`
	NeedsReview bool       `json:"needs_review,omitempty"`
	Target      Target     `json:"target,omitzero"`
	Memo        string     `json:"memo,omitempty"`
}

// Plan is the validated output of one planner call.
type Plan struct {
	Classification Classification `json:"classification"`
	AssistantMemo  string         `json:"assistant_memo,omitempty"`
	Items          []ProposedItem `json:"items"`
}
