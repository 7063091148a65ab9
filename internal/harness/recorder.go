package harness

import (
	"context"
	"sync"

	"github.com/roach88/recon/internal/adapter"
	"github.com/roach88/recon/internal/ir"
)

// recorder keeps adapter calls from both adapters in one ordered log.
type recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *recorder) add(op string, ref ir.Ref, title string, err error) {
	c := Call{Op: op, Ref: ref, Title: title}
	if err != nil {
		c.Error = err.Error()
	}
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) since(mark int) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call{}, r.calls[mark:]...)
}

func (r *recorder) all() []Call {
	return r.since(0)
}

type recordingCalendar struct {
	inner adapter.Calendar
	rec   *recorder
}

func (c *recordingCalendar) CreateEvent(ctx context.Context, spec adapter.EventSpec) (ir.Ref, error) {
	ref, err := c.inner.CreateEvent(ctx, spec)
	c.rec.add("calendar.create", ref, spec.Title, err)
	return ref, err
}

func (c *recordingCalendar) UpdateEvent(ctx context.Context, ref ir.Ref, spec adapter.EventSpec) error {
	err := c.inner.UpdateEvent(ctx, ref, spec)
	c.rec.add("calendar.update", ref, spec.Title, err)
	return err
}

func (c *recordingCalendar) DeleteEvent(ctx context.Context, ref ir.Ref) error {
	err := c.inner.DeleteEvent(ctx, ref)
	c.rec.add("calendar.delete", ref, "", err)
	return err
}

type recordingTasks struct {
	inner adapter.Tasks
	rec   *recorder
}

func (t *recordingTasks) CreateTask(ctx context.Context, spec adapter.TaskSpec) (ir.Ref, error) {
	ref, err := t.inner.CreateTask(ctx, spec)
	t.rec.add("tasks.create", ref, spec.Title, err)
	return ref, err
}

func (t *recordingTasks) UpdateTask(ctx context.Context, ref ir.Ref, spec adapter.TaskSpec) error {
	err := t.inner.UpdateTask(ctx, ref, spec)
	t.rec.add("tasks.update", ref, spec.Title, err)
	return err
}

func (t *recordingTasks) DeleteTask(ctx context.Context, ref ir.Ref) error {
	err := t.inner.DeleteTask(ctx, ref)
	t.rec.add("tasks.delete", ref, "", err)
	return err
}
