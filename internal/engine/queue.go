package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/recon/internal/ir"
)

// job is one record waiting for a pass.
type job struct {
	rec  ir.Record
	done chan jobResult // buffered, size 1
}

type jobResult struct {
	report *PassReport
	err    error
}

var errQueueClosed = errors.New("queue closed")

// jobQueue hands submitted passes to the Run loop. HTTP handlers and the
// inbox poller enqueue; the Run loop dequeues.
//
// Submitters must hold the single admission slot before enqueueing and the
// Run loop frees it once the pass is done, so at most one pass is queued or
// running at a time.
//
// A buffered signal channel of size 1 coalesces wakeups so the Run loop can
// wait on it together with ctx.Done().
type jobQueue struct {
	mu      sync.Mutex
	jobs    []job
	closed  bool
	signal  chan struct{}
	slot    chan struct{}
	stopped chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:    make([]job, 0, 1),
		signal:  make(chan struct{}, 1),
		slot:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Admit takes the admission slot, waiting until ctx is done. It fails with
// errQueueClosed once the queue is closed.
func (q *jobQueue) Admit(ctx context.Context) error {
	select {
	case <-q.stopped:
		return errQueueClosed
	default:
	}
	select {
	case q.slot <- struct{}{}:
		return nil
	case <-q.stopped:
		return errQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the admission slot.
func (q *jobQueue) Release() {
	select {
	case <-q.slot:
	default:
	}
}

// Enqueue reports false once the queue is closed.
func (q *jobQueue) Enqueue(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue returns the oldest job without blocking.
func (q *jobQueue) TryDequeue() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return job{}, false
	}
	j := q.jobs[0]
	// Clear the slot so the record can be collected.
	q.jobs[0] = job{}
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

// Wait signals that jobs may be available. It is closed by Close.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *jobQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops new enqueues and wakes the Run loop. Jobs still queued are
// returned so their submitters can be failed.
func (q *jobQueue) Close() []job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)
	close(q.stopped)
	pending := q.jobs
	q.jobs = nil
	return pending
}
