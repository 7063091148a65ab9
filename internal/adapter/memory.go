package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/recon/internal/ir"
)

// Call records one adapter invocation on a fake.
type Call struct {
	Op    string `json:"op" yaml:"op"`
	Ref   ir.Ref `json:"ref,omitempty" yaml:"ref,omitempty"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

// FailFunc lets tests inject adapter failures. Returning nil lets the call
// proceed.
type FailFunc func(op string, ref ir.Ref, title string) error

// fake is the shared bookkeeping of the in-memory adapters.
type fake[T any] struct {
	mu     sync.Mutex
	prefix string
	next   int
	items  map[ir.Ref]T
	calls  []Call
	fail   FailFunc
}

func newFake[T any](prefix string) *fake[T] {
	return &fake[T]{prefix: prefix, items: make(map[ir.Ref]T)}
}

func (f *fake[T]) create(op, title string, v T) (ir.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Title: title})
	if f.fail != nil {
		if err := f.fail(op, "", title); err != nil {
			return "", err
		}
	}
	f.next++
	ref := ir.Ref(fmt.Sprintf("%s-%d", f.prefix, f.next))
	f.items[ref] = v
	return ref, nil
}

func (f *fake[T]) update(op string, ref ir.Ref, title string, v T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Ref: ref, Title: title})
	if f.fail != nil {
		if err := f.fail(op, ref, title); err != nil {
			return err
		}
	}
	if _, ok := f.items[ref]; !ok {
		return fmt.Errorf("%s %s: %w", op, ref, ErrNotFound)
	}
	f.items[ref] = v
	return nil
}

func (f *fake[T]) remove(op string, ref ir.Ref) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Ref: ref})
	if f.fail != nil {
		if err := f.fail(op, ref, ""); err != nil {
			return err
		}
	}
	if _, ok := f.items[ref]; !ok {
		return fmt.Errorf("%s %s: %w", op, ref, ErrNotFound)
	}
	delete(f.items, ref)
	return nil
}

func (f *fake[T]) snapshotCalls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call{}, f.calls...)
}

func (f *fake[T]) get(ref ir.Ref) (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[ref]
	return v, ok
}

func (f *fake[T]) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *fake[T]) seed(ref ir.Ref, v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[ref] = v
}

func (f *fake[T]) setFail(fn FailFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

// MemoryCalendar is an in-process Calendar with deterministic refs
// ("evt-1", "evt-2", ...).
type MemoryCalendar struct {
	f *fake[EventSpec]
}

var _ Calendar = (*MemoryCalendar)(nil)

func NewMemoryCalendar() *MemoryCalendar {
	return &MemoryCalendar{f: newFake[EventSpec]("evt")}
}

func (c *MemoryCalendar) CreateEvent(_ context.Context, spec EventSpec) (ir.Ref, error) {
	return c.f.create("calendar.create", spec.Title, spec)
}

func (c *MemoryCalendar) UpdateEvent(_ context.Context, ref ir.Ref, spec EventSpec) error {
	return c.f.update("calendar.update", ref, spec.Title, spec)
}

func (c *MemoryCalendar) DeleteEvent(_ context.Context, ref ir.Ref) error {
	return c.f.remove("calendar.delete", ref)
}

// Calls returns every invocation so far, failed ones included.
func (c *MemoryCalendar) Calls() []Call { return c.f.snapshotCalls() }

// Event returns the stored spec for ref.
func (c *MemoryCalendar) Event(ref ir.Ref) (EventSpec, bool) { return c.f.get(ref) }

// Len returns the number of live events.
func (c *MemoryCalendar) Len() int { return c.f.len() }

// FailWith installs a failure injector.
func (c *MemoryCalendar) FailWith(fn FailFunc) { c.f.setFail(fn) }

// Seed registers an existing event under ref, as if created out of band.
func (c *MemoryCalendar) Seed(ref ir.Ref, spec EventSpec) { c.f.seed(ref, spec) }

// MemoryTasks is an in-process Tasks with refs "task-1", "task-2", ...
type MemoryTasks struct {
	f *fake[TaskSpec]
}

var _ Tasks = (*MemoryTasks)(nil)

func NewMemoryTasks() *MemoryTasks {
	return &MemoryTasks{f: newFake[TaskSpec]("task")}
}

func (t *MemoryTasks) CreateTask(_ context.Context, spec TaskSpec) (ir.Ref, error) {
	return t.f.create("tasks.create", spec.Title, spec)
}

func (t *MemoryTasks) UpdateTask(_ context.Context, ref ir.Ref, spec TaskSpec) error {
	return t.f.update("tasks.update", ref, spec.Title, spec)
}

func (t *MemoryTasks) DeleteTask(_ context.Context, ref ir.Ref) error {
	return t.f.remove("tasks.delete", ref)
}

func (t *MemoryTasks) Calls() []Call                    { return t.f.snapshotCalls() }
func (t *MemoryTasks) Task(ref ir.Ref) (TaskSpec, bool) { return t.f.get(ref) }
func (t *MemoryTasks) Len() int                         { return t.f.len() }
func (t *MemoryTasks) FailWith(fn FailFunc)             { t.f.setFail(fn) }

// Seed registers an existing task under ref, as if created out of band.
func (t *MemoryTasks) Seed(ref ir.Ref, spec TaskSpec) { t.f.seed(ref, spec) }
