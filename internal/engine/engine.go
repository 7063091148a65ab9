package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/recon/internal/adapter"
	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/memory"
	"github.com/roach88/recon/internal/plan"
	"github.com/roach88/recon/internal/store"
)

// Planner proposes follow-on actions for a record. The returned bytes are
// untrusted and go through plan.Normalize before anything acts on them.
type Planner interface {
	Plan(ctx context.Context, rec ir.Record, snap memory.Snapshot) ([]byte, error)
}

// Defaults.
const (
	DefaultLockTimeout    = 10 * time.Second
	DefaultEventDuration  = 60 * time.Minute
	DefaultDeadlineHour   = 17
	DefaultDeadlineMinute = 0
)

// ErrStopped is returned by Submit after Stop or once Run has returned.
var ErrStopped = errors.New("engine stopped")

// Scheduling shapes the payloads sent to the adapters.
type Scheduling struct {
	// Location interprets zoneless planner times and places all-day events.
	Location *time.Location

	// DefaultDuration is used when an event has no end after its start.
	DefaultDuration time.Duration

	// DeadlineHour and DeadlineMinute place date-only deadlines.
	DeadlineHour   int
	DeadlineMinute int

	// TitlePrefix is prepended to calendar event titles, e.g. "[Email]".
	TitlePrefix string
}

// DefaultScheduling returns the scheduling used when none is configured.
func DefaultScheduling() Scheduling {
	return Scheduling{
		Location:        time.Local,
		DefaultDuration: DefaultEventDuration,
		DeadlineHour:    DefaultDeadlineHour,
		DeadlineMinute:  DefaultDeadlineMinute,
	}
}

// Engine reconciles planner proposals against history and the adapters.
//
// RunOnePass may be called directly; it takes the pass lock itself. Run
// starts a loop that executes passes submitted with Submit one at a time.
type Engine struct {
	history  store.History
	planner  Planner
	calendar adapter.Calendar
	tasks    adapter.Tasks

	locker  Locker
	clock   Clock
	passIDs PassIDGenerator
	logger  *slog.Logger
	metrics *Metrics

	window          time.Duration
	maxRowsRead     int
	lockTimeout     time.Duration
	dryRun          bool
	fallback        bool
	maxItems        int
	sched           Scheduling
	snapshotEntries int
	snapshotMemos   int

	queue *jobQueue
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLocker replaces the default in-process mutex.
func WithLocker(l Locker) EngineOption {
	return func(e *Engine) { e.locker = l }
}

func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

func WithPassIDs(g PassIDGenerator) EngineOption {
	return func(e *Engine) { e.passIDs = g }
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithWindow sets how far back history is consulted (default 62 days).
func WithWindow(d time.Duration) EngineOption {
	return func(e *Engine) { e.window = d }
}

// WithMaxRowsRead bounds the history read per pass (default 5000).
func WithMaxRowsRead(n int) EngineOption {
	return func(e *Engine) { e.maxRowsRead = n }
}

// WithLockTimeout bounds how long a pass waits for the lock (default 10s).
func WithLockTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.lockTimeout = d }
}

// WithDryRun records what would have happened without calling adapters.
func WithDryRun(on bool) EngineOption {
	return func(e *Engine) { e.dryRun = on }
}

// WithFallback toggles the deadline-task fallback for untimed events
// (default on).
func WithFallback(on bool) EngineOption {
	return func(e *Engine) { e.fallback = on }
}

// WithMaxItems caps items per plan (default 30, never above 60).
func WithMaxItems(n int) EngineOption {
	return func(e *Engine) { e.maxItems = n }
}

func WithScheduling(s Scheduling) EngineOption {
	return func(e *Engine) { e.sched = s }
}

// WithSnapshotLimits bounds the memory handed to the planner.
func WithSnapshotLimits(entries, memos int) EngineOption {
	return func(e *Engine) {
		e.snapshotEntries = entries
		e.snapshotMemos = memos
	}
}

// New creates an Engine. calendar and tasks may be nil; items that need a
// missing adapter are recorded as SKIP_ADAPTER_UNAVAILABLE.
func New(history store.History, planner Planner, calendar adapter.Calendar, tasks adapter.Tasks, opts ...EngineOption) *Engine {
	e := &Engine{
		history:         history,
		planner:         planner,
		calendar:        calendar,
		tasks:           tasks,
		locker:          NewMutexLocker(),
		clock:           SystemClock{},
		passIDs:         UUIDv7Generator{},
		logger:          slog.Default(),
		window:          memory.DefaultWindow,
		maxRowsRead:     store.DefaultMaxRowsRead,
		lockTimeout:     DefaultLockTimeout,
		fallback:        true,
		maxItems:        plan.DefaultMaxItems,
		sched:           DefaultScheduling(),
		snapshotEntries: memory.DefaultSnapshotEntries,
		snapshotMemos:   memory.DefaultSnapshotMemos,
		queue:           newJobQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sched.Location == nil {
		e.sched.Location = time.Local
	}
	if e.sched.DefaultDuration <= 0 {
		e.sched.DefaultDuration = DefaultEventDuration
	}
	return e
}

// DryRun reports whether the engine skips adapter calls.
func (e *Engine) DryRun() bool {
	return e.dryRun
}

func (e *Engine) planOptions() plan.Options {
	return plan.Options{
		MaxItems:       e.maxItems,
		Location:       e.sched.Location,
		DeadlineHour:   e.sched.DeadlineHour,
		DeadlineMinute: e.sched.DeadlineMinute,
	}
}

// Submit hands rec to the Run loop and waits for its pass to finish.
//
// Passes are never queued behind each other: when another submitted pass is
// still running after the lock timeout, Submit fails with a
// LockContentionError.
func (e *Engine) Submit(ctx context.Context, rec ir.Record) (*PassReport, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	err := e.queue.Admit(waitCtx)
	cancel()
	switch {
	case errors.Is(err, errQueueClosed):
		return nil, ErrStopped
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		e.logger.Info("pass rejected: another pass is running", "event", "lock_contention", "record", rec.ID, "timeout", e.lockTimeout)
		e.metrics.pass(resultLockContention, 0)
		return nil, &LockContentionError{Timeout: e.lockTimeout, Err: err}
	}

	j := job{rec: rec, done: make(chan jobResult, 1)}
	if !e.queue.Enqueue(j) {
		e.queue.Release()
		return nil, ErrStopped
	}
	select {
	case r := <-j.done:
		return r.report, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of submitted passes not yet started: zero or
// one.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Run executes submitted passes one at a time until ctx is cancelled or
// Stop is called. It must be called from exactly one goroutine.
//
// A failed pass is logged and reported to its submitter; the loop goes on.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "dry_run", e.dryRun, "fallback", e.fallback)
	for {
		if j, ok := e.queue.TryDequeue(); ok {
			report, err := e.RunOnePass(ctx, j.rec)
			j.done <- jobResult{report: report, err: err}
			e.queue.Release()
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.failPending(e.queue.Close())
			return ctx.Err()
		case <-e.queue.Wait():
			// A closed signal channel fires immediately; an empty queue then
			// means Stop was called.
			if e.queue.Len() == 0 && e.queue.Closed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop makes Run return once the current pass finishes. Passes still
// queued fail with ErrStopped.
func (e *Engine) Stop() {
	e.failPending(e.queue.Close())
}

func (e *Engine) failPending(jobs []job) {
	for _, j := range jobs {
		if j.done != nil {
			j.done <- jobResult{err: ErrStopped}
		}
		e.queue.Release()
	}
}
