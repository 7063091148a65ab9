// Package engine runs reconciliation passes.
//
// A pass takes one record, asks the planner for proposals, normalizes them,
// and reconciles each proposal against history and the external adapters:
//
//  1. acquire the pass lock (abort on contention, never queue)
//  2. read the history window and build the memory index
//  3. plan and normalize (abort before any mutation on failure)
//  4. for each item in order: fingerprint, decide, apply, append the entry
//  5. release the lock
//
// Items are processed strictly sequentially. An adapter failure marks the
// item ERROR and the pass continues. History is append-only; each item's
// entry is written right after the item is applied so a crash mid-pass
// leaves every applied mutation recorded.
//
// Passes submitted through Run are serialized by a single goroutine.
// The lock additionally excludes passes from other processes that share
// the history store.
package engine
