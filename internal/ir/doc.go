// Package ir holds the domain types shared by every recon package: source
// records, planner proposals, outcomes, and the append-only memory entries
// that make reconciliation idempotent.
//
// ir imports nothing internal. Key derivation (Fingerprint) lives here so
// that the engine, the memory index, and the history stores agree on a
// single definition of "the same real-world fact".
//
// Conventions:
//   - JSON tags use snake_case
//   - optional instants are *time.Time and always compared in UTC
//   - enums are string types with an explicit Valid() check
package ir
