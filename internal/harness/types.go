package harness

import (
	"github.com/roach88/recon/internal/ir"
)

// Call is one adapter operation observed during a scenario.
type Call struct {
	Op    string `json:"op"`
	Ref   ir.Ref `json:"ref,omitempty"`
	Title string `json:"title,omitempty"`
	Error string `json:"error,omitempty"`
}

// ItemTrace is the reconciled state of one proposed item.
type ItemTrace struct {
	Index       int          `json:"index"`
	Title       string       `json:"title"`
	Outcome     ir.Outcome   `json:"outcome"`
	Chain       []ir.Outcome `json:"chain,omitempty"`
	MemoryID    string       `json:"memory_id,omitempty"`
	Ref         ir.Ref       `json:"ref,omitempty"`
	NeedsReview bool         `json:"needs_review,omitempty"`
}

// PassTrace is what one pass did.
type PassTrace struct {
	Record string      `json:"record"`
	Error  string      `json:"error,omitempty"` // error class when the pass failed
	Items  []ItemTrace `json:"items"`
	Calls  []Call      `json:"calls"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Passes []PassTrace `json:"passes"`
	Errors []string    `json:"errors,omitempty"`

	// Calls is every adapter call across all passes, in order.
	Calls []Call `json:"-"`

	// Entries is the final history, in append order.
	Entries []ir.MemoryEntry `json:"-"`

	// Live counts resources held by each adapter at the end.
	Live map[string]int `json:"-"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Passes: []PassTrace{},
		Errors: []string{},
		Live:   map[string]int{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
