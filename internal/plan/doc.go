// Package plan is the quarantine boundary between the planner and the
// reconciler.
//
// Normalize turns raw planner output into an ir.Plan the reconciler can
// trust: bounded item count, bounded strings, known enums, clamped
// confidence, parsed instants. It coerces rather than rejects; the only
// error is output that is not a JSON object at all.
//
// Lint is the strict counterpart used by operators and tests: it checks a
// payload against the embedded CUE schema and reports every violation.
package plan
