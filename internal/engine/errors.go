package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/recon/internal/ir"
)

// AdapterError wraps a failed calendar or task adapter call. It becomes an
// ERROR outcome on the item and never aborts the pass.
type AdapterError struct {
	Adapter string // "calendar" or "tasks"
	Op      ir.Operation
	Ref     ir.Ref
	Err     error
}

func (e *AdapterError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Adapter, e.Op, e.Ref, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Adapter, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// LockContentionError reports that another pass held the lock for the
// whole acquisition timeout.
type LockContentionError struct {
	Holder  string
	Timeout time.Duration
	Err     error
}

func (e *LockContentionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pass lock busy after %s: %v", e.Timeout, e.Err)
	}
	return fmt.Sprintf("pass lock busy after %s", e.Timeout)
}

func (e *LockContentionError) Unwrap() error {
	return e.Err
}

// PlannerUnavailableError reports that no usable plan was obtained. The pass
// aborts before any mutation and writes nothing.
type PlannerUnavailableError struct {
	RecordID string
	Err      error
}

func (e *PlannerUnavailableError) Error() string {
	return fmt.Sprintf("planner unavailable for record %s: %v", e.RecordID, e.Err)
}

func (e *PlannerUnavailableError) Unwrap() error {
	return e.Err
}

// HistoryError reports a failed history read or append.
type HistoryError struct {
	Op  string // "read" or "append"
	Err error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *HistoryError) Unwrap() error {
	return e.Err
}

// IsLockContention reports whether err is, or wraps, a LockContentionError.
func IsLockContention(err error) bool {
	var le *LockContentionError
	return errors.As(err, &le)
}

// IsPlannerUnavailable reports whether err is, or wraps, a
// PlannerUnavailableError.
func IsPlannerUnavailable(err error) bool {
	var pe *PlannerUnavailableError
	return errors.As(err, &pe)
}

// IsHistoryError reports whether err is, or wraps, a HistoryError.
func IsHistoryError(err error) bool {
	var he *HistoryError
	return errors.As(err, &he)
}
