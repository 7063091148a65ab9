package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/recon/internal/store"
)

// Locker grants the exclusive pass lock. Acquire blocks until the lock is
// held or ctx is done; the engine bounds ctx with its lock timeout. The
// returned release func must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, holder string) (release func(), err error)
}

// MutexLocker excludes passes within one process.
type MutexLocker struct {
	sem chan struct{}
}

var _ Locker = (*MutexLocker)(nil)

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{sem: make(chan struct{}, 1)}
}

func (l *MutexLocker) Acquire(ctx context.Context, _ string) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	default:
	}
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DefaultLeaseTTL bounds how long a crashed holder can block other passes.
const DefaultLeaseTTL = 10 * time.Minute

// LeaseLocker excludes passes across processes sharing a history store by
// polling the store's lease. A held lease is renewed every ttl/3 so a pass
// that outlives ttl keeps it.
type LeaseLocker struct {
	leaser store.Leaser
	ttl    time.Duration
	poll   time.Duration
}

var _ Locker = (*LeaseLocker)(nil)

// NewLeaseLocker polls leaser every poll interval while waiting.
func NewLeaseLocker(leaser store.Leaser, ttl, poll time.Duration) *LeaseLocker {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &LeaseLocker{leaser: leaser, ttl: ttl, poll: poll}
}

func (l *LeaseLocker) Acquire(ctx context.Context, holder string) (func(), error) {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.leaser.AcquireLease(ctx, holder, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lease: %w", err)
		}
		if ok {
			return l.hold(holder), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// hold renews the lease until the returned release func runs.
func (l *LeaseLocker) hold(holder string) func() {
	every := max(l.ttl/3, time.Millisecond)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			// AcquireLease extends the expiry for the current holder. A failed
			// renewal is retried on the next tick.
			rctx, cancel := context.WithTimeout(context.Background(), every)
			_, _ = l.leaser.AcquireLease(rctx, holder, l.ttl)
			cancel()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The acquiring ctx may already be done; release on a fresh one.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.leaser.ReleaseLease(rctx, holder)
		})
	}
}

// chainLocker acquires every locker in order and releases in reverse.
type chainLocker []Locker

func (c chainLocker) Acquire(ctx context.Context, holder string) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		release, err := l.Acquire(ctx, holder)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// ChainLockers combines lockers, e.g. an in-process mutex in front of a
// store lease.
func ChainLockers(lockers ...Locker) Locker {
	return chainLocker(lockers)
}
