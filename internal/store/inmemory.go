package store

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/recon/internal/ir"
)

// MemoryStore is an in-process History for tests and throwaway runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []ir.MemoryEntry
	nextSeq int64
	closed  bool

	leaseHolder  string
	leaseExpires time.Time
	now          func() time.Time

	// FailAppend, when set, is returned by Append instead of writing.
	FailAppend error
}

var _ Backend = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory history.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextSeq: 1, now: time.Now}
}

func (s *MemoryStore) Append(_ context.Context, entries ...ir.MemoryEntry) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.FailAppend != nil {
		return nil, s.FailAppend
	}
	seqs := make([]int64, 0, len(entries))
	for _, e := range entries {
		e.Seq = s.nextSeq
		s.nextSeq++
		s.entries = append(s.entries, e)
		seqs = append(seqs, e.Seq)
	}
	return seqs, nil
}

func (s *MemoryStore) ReadWindow(_ context.Context, since time.Time, limit int) ([]ir.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultMaxRowsRead
	}
	out := []ir.MemoryEntry{}
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if !s.entries[i].ObservedAt.Before(since) {
			out = append(out, s.entries[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *MemoryStore) Search(_ context.Context, f Filter) ([]ir.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := []ir.MemoryEntry{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
		if f.Match(s.entries[i]) {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) Reset(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := int64(len(s.entries))
	s.entries = nil
	return n, nil
}

func (s *MemoryStore) AcquireLease(_ context.Context, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.leaseHolder != "" && s.leaseHolder != holder && now.Before(s.leaseExpires) {
		return false, nil
	}
	s.leaseHolder = holder
	s.leaseExpires = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) ReleaseLease(_ context.Context, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseHolder == holder {
		s.leaseHolder = ""
	}
	return nil
}

// Entries returns a copy of everything appended so far.
func (s *MemoryStore) Entries() []ir.MemoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ir.MemoryEntry{}, s.entries...)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
