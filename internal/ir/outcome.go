package ir

import "strings"

// Outcome is what the reconciler actually did with a proposal.
type Outcome string

const (
	OutcomeNone                   Outcome = "NONE"
	OutcomeRecordOnly             Outcome = "RECORD_ONLY"
	OutcomeCreate                 Outcome = "CREATE"
	OutcomeUpdate                 Outcome = "UPDATE"
	OutcomeCancel                 Outcome = "CANCEL"
	OutcomeSkip                   Outcome = "SKIP"
	OutcomeSkipDuplicate          Outcome = "SKIP_DUPLICATE"
	OutcomeSkipNoTarget           Outcome = "SKIP_NO_TARGET"
	OutcomeSkipNoTime             Outcome = "SKIP_NO_TIME"
	OutcomeSkipNotFound           Outcome = "SKIP_NOT_FOUND"
	OutcomeSkipAdapterUnavailable Outcome = "SKIP_ADAPTER_UNAVAILABLE"
	OutcomeError                  Outcome = "ERROR"
	OutcomeNoItems                Outcome = "NO_ITEMS"

	fallbackPrefix = "FALLBACK_TASK_"
	dryRunPrefix   = "DRY_RUN_"
)

// FallbackOutcome wraps the outcome of a derived fallback task.
func FallbackOutcome(derived Outcome) Outcome {
	return Outcome(fallbackPrefix + string(derived))
}

// DryRunOutcome names the mutation a dry run would have performed.
func DryRunOutcome(op Operation) Outcome {
	return Outcome(dryRunPrefix + string(op))
}

// IsFallback reports whether o came from the fallback policy.
func (o Outcome) IsFallback() bool {
	return strings.HasPrefix(string(o), fallbackPrefix)
}

// IsDryRun reports whether o is a dry-run outcome, fallback wrapped or not.
func (o Outcome) IsDryRun() bool {
	return strings.HasPrefix(string(o.Base()), dryRunPrefix)
}

// Base strips the fallback prefix.
func (o Outcome) Base() Outcome {
	return Outcome(strings.TrimPrefix(string(o), fallbackPrefix))
}

// IsSkip reports whether o is any SKIP_* outcome, fallback wrapped or not.
func (o Outcome) IsSkip() bool {
	return strings.HasPrefix(string(o.Base()), "SKIP")
}

// Mutated reports whether o changed an external resource.
func (o Outcome) Mutated() bool {
	switch o.Base() {
	case OutcomeCreate, OutcomeUpdate, OutcomeCancel:
		return true
	}
	return false
}

// Terminal reports whether a resource reference recorded with o no longer
// points at a live resource.
func (o Outcome) Terminal() bool {
	switch o.Base() {
	case OutcomeCancel, OutcomeSkipNotFound:
		return true
	}
	return false
}

// NeedsAttention reports whether an operator should look at o.
func (o Outcome) NeedsAttention() bool {
	return o == OutcomeError || o.IsSkip()
}
