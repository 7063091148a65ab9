// Package memory builds the bounded lookup structure the reconciler consults:
// idempotency key to the most recent history entry inside a window.
package memory

import (
	"slices"
	"sort"
	"time"

	"github.com/roach88/recon/internal/ir"
)

// DefaultWindow is how far back history is consulted.
const DefaultWindow = 62 * 24 * time.Hour

// Index maps keys to their latest entry. It is built once per pass and then
// updated with Put as the pass applies items. Not safe for concurrent use.
type Index struct {
	from    time.Time
	to      time.Time
	byKey   map[ir.Key]ir.MemoryEntry
	byShort map[string]ir.Key
	byRef   map[ir.Ref][]ir.Key
}

// Build indexes entries observed in [now-window, now]. For each key the
// entry with the latest ObservedAt wins; ties go to the later append.
// A fallback entry is also indexed under its derived task key. Dry-run
// entries never mutated anything and are not indexed.
//
// An entry about a ref also supersedes every key whose latest entry holds
// that same ref, so a cancel or update that reached the resource through a
// memory id or an explicit ref is seen from the key that created it. Refs
// are assumed unique across adapters.
func Build(entries []ir.MemoryEntry, now time.Time, window time.Duration) *Index {
	ix := &Index{
		from:    now.Add(-window),
		to:      now,
		byKey:   make(map[ir.Key]ir.MemoryEntry, len(entries)),
		byShort: make(map[string]ir.Key, len(entries)),
		byRef:   make(map[ir.Ref][]ir.Key),
	}
	for _, e := range entries {
		if e.ObservedAt.Before(ix.from) || e.ObservedAt.After(ix.to) {
			continue
		}
		ix.put(e)
	}
	return ix
}

// Put records an entry appended during the current pass.
func (ix *Index) Put(e ir.MemoryEntry) {
	ix.put(e)
}

func (ix *Index) put(e ir.MemoryEntry) {
	if e.Key == "" || e.Outcome.IsDryRun() {
		return
	}
	own := []ir.Key{e.Key}
	if e.DerivedKey != "" {
		own = append(own, e.DerivedKey)
	}
	for _, k := range own {
		ix.putKey(k, e)
	}
	if e.Ref == "" {
		return
	}

	for _, k := range ix.byRef[e.Ref] {
		if cur := ix.byKey[k]; cur.Ref == e.Ref {
			ix.putKey(k, e)
		}
	}
	for _, k := range own {
		if !slices.Contains(ix.byRef[e.Ref], k) {
			ix.byRef[e.Ref] = append(ix.byRef[e.Ref], k)
		}
	}
}

func (ix *Index) putKey(k ir.Key, e ir.MemoryEntry) {
	if cur, ok := ix.byKey[k]; ok && !e.Newer(cur) {
		return
	}
	ix.byKey[k] = e
	ix.byShort[k.Short()] = k
}

// Lookup returns the latest entry for k.
func (ix *Index) Lookup(k ir.Key) (ir.MemoryEntry, bool) {
	e, ok := ix.byKey[k]
	return e, ok
}

// Resolve finds an entry by full key or short memory id.
func (ix *Index) Resolve(id string) (ir.MemoryEntry, bool) {
	if id == "" {
		return ir.MemoryEntry{}, false
	}
	if e, ok := ix.byKey[ir.Key(id)]; ok {
		return e, true
	}
	k, ok := ix.byShort[id]
	if !ok {
		return ir.MemoryEntry{}, false
	}
	return ix.byKey[k], true
}

// Len returns the number of distinct keys indexed.
func (ix *Index) Len() int {
	return len(ix.byKey)
}

// Window returns the bounds the index was built over.
func (ix *Index) Window() (from, to time.Time) {
	return ix.from, ix.to
}

// Latest returns at most limit distinct entries, newest first.
// Entries reachable under two keys appear once.
func (ix *Index) Latest(limit int) []ir.MemoryEntry {
	seen := make(map[ir.Key]bool, len(ix.byKey))
	out := make([]ir.MemoryEntry, 0, len(ix.byKey))
	for _, e := range ix.byKey {
		if seen[e.Key] {
			continue
		}
		seen[e.Key] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Newer(out[j])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
