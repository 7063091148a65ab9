// Package adapter defines the external mutable resources the engine
// reconciles against (a calendar and a task list) and their
// implementations: in-memory fakes and Google REST clients.
package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/recon/internal/ir"
)

// ErrNotFound reports that a referenced resource no longer exists.
var ErrNotFound = errors.New("adapter: resource not found")

// EventSpec is the adapter-facing description of a calendar event.
// For all-day events Start and End are local midnights and End is
// exclusive.
type EventSpec struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Reminders   []int // popup lead times in minutes
}

// TaskSpec is the adapter-facing description of a task.
type TaskSpec struct {
	Title string
	Notes string
	Due   *time.Time
}

// Calendar creates, updates and deletes scheduled events.
type Calendar interface {
	CreateEvent(ctx context.Context, spec EventSpec) (ir.Ref, error)
	UpdateEvent(ctx context.Context, ref ir.Ref, spec EventSpec) error
	DeleteEvent(ctx context.Context, ref ir.Ref) error
}

// Tasks creates, updates and deletes deadline tasks.
type Tasks interface {
	CreateTask(ctx context.Context, spec TaskSpec) (ir.Ref, error)
	UpdateTask(ctx context.Context, ref ir.Ref, spec TaskSpec) error
	DeleteTask(ctx context.Context, ref ir.Ref) error
}

// Reminders returns popup lead times for a plan priority.
func Reminders(p ir.Priority) []int {
	switch p {
	case ir.PriorityHigh:
		return []int{1440, 120, 30}
	case ir.PriorityLow:
		return []int{30}
	default:
		return []int{180, 30}
	}
}
