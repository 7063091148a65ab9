// Package planner provides the proposal sources the engine consults: a
// static plan file for offline runs and tests, and a Gemini client for
// live classification.
//
// Every planner returns raw bytes. Nothing here validates a plan; the
// engine hands the output to plan.Normalize.
package planner

import (
	"context"

	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/memory"
)

// Func adapts a function to the engine's Planner interface.
type Func func(ctx context.Context, rec ir.Record, snap memory.Snapshot) ([]byte, error)

// Plan calls f.
func (f Func) Plan(ctx context.Context, rec ir.Record, snap memory.Snapshot) ([]byte, error) {
	return f(ctx, rec, snap)
}

// Static returns the same plan for every record.
type Static []byte

// Plan returns a copy of the static plan.
func (s Static) Plan(context.Context, ir.Record, memory.Snapshot) ([]byte, error) {
	out := make([]byte, len(s))
	copy(out, s)
	return out, nil
}
