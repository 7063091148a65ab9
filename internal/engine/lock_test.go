package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/store"
)

// countingLeaser wraps a Leaser and counts the calls made for one holder.
type countingLeaser struct {
	store.Leaser

	mu       sync.Mutex
	acquires int
	releases int
}

func (c *countingLeaser) AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	c.acquires++
	c.mu.Unlock()
	return c.Leaser.AcquireLease(ctx, holder, ttl)
}

func (c *countingLeaser) ReleaseLease(ctx context.Context, holder string) error {
	c.mu.Lock()
	c.releases++
	c.mu.Unlock()
	return c.Leaser.ReleaseLease(ctx, holder)
}

func (c *countingLeaser) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquires, c.releases
}

func TestLeaseLockerRenewsWhileHeld(t *testing.T) {
	backing := store.NewMemoryStore()
	leaser := &countingLeaser{Leaser: backing}
	ttl := 60 * time.Millisecond
	l := NewLeaseLocker(leaser, ttl, 5*time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "a")
	require.NoError(t, err)

	// Several TTLs later the lease is still held by a.
	time.Sleep(4 * ttl)
	ok, err := backing.AcquireLease(ctx, "b", ttl)
	require.NoError(t, err)
	assert.False(t, ok, "lease expired while held")

	acquires, _ := leaser.counts()
	assert.Greater(t, acquires, 1, "no renewal happened")

	release()
	release()
	afterRelease, releases := leaser.counts()
	assert.Equal(t, 1, releases)

	ok, err = backing.AcquireLease(ctx, "b", ttl)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(2 * ttl)
	acquires, _ = leaser.counts()
	assert.Equal(t, afterRelease, acquires, "renewal kept running after release")
}

func TestLeaseLockerWaitsForHolder(t *testing.T) {
	backing := store.NewMemoryStore()
	ctx := context.Background()
	ok, err := backing.AcquireLease(ctx, "other", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	l := NewLeaseLocker(backing, time.Minute, 5*time.Millisecond)
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(waitCtx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, backing.ReleaseLease(ctx, "other"))
	release, err := l.Acquire(ctx, "a")
	require.NoError(t, err)
	release()
}
