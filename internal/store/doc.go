// Package store persists the append-only reconciliation history.
//
// Every applied proposal becomes one history row (ir.MemoryEntry). Rows
// are never updated; the memory index derives "latest outcome per key" by
// reading a bounded window back. Three backends implement History:
//
//   - SQLiteStore: the default, a single local file
//   - PostgresStore: shared deployments
//   - MemoryStore: tests and throwaway runs
//
// # Ordering
//
// seq is assigned by the backend in append order and is the tie-breaker
// for entries observed at the same instant. All reads are ordered by seq
// so results are deterministic.
//
// # Pass lease
//
// Each backend also implements Leaser, the exclusive lock held for the
// duration of a pass. SQLite uses a lease row with an expiry, Postgres a
// session advisory lock, MemoryStore a mutex-guarded holder.
//
// # SQLite configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single open connection (one writer)
package store
