package planner

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/memory"
)

const promptRules = `You turn one incoming message into a plan of follow-up actions.
Answer with a single JSON object and nothing else:

{
  "classification": {"category": "ACTIONABLE|INFO|PROMO", "priority": "HIGH|MEDIUM|LOW", "reasoning": "..."},
  "assistant_memo": "one line for the operator",
  "items": [{
    "kind": "SCHEDULED_EVENT|DEADLINE_TASK|NOTE|DISCARD",
    "operation": "CREATE|UPDATE|CANCEL|SKIP",
    "title": "...", "start": "...", "end": "...", "deadline": "...", "all_day": false,
    "location": "...", "body": "...", "memo": "...",
    "confidence": 0.0, "needs_review": false,
    "target": {"memory_id": "...", "ref": "..."}
  }]
}

Rules:
- Times are ISO 8601. Omit the zone to mean the local zone below. A bare date means all day.
- Use a SCHEDULED_EVENT only when the message gives a start. Otherwise use a DEADLINE_TASK.
- Before proposing CREATE, check memory. If an entry already covers the action, use SKIP,
  or UPDATE/CANCEL with target.memory_id set to that entry's memory_id.
- Never invent refs. Only copy memory ids that appear in memory.
- Use DISCARD for promotions and messages that need nothing.
- Set needs_review when unsure.`

// BuildPrompt renders the planner prompt for rec.
func BuildPrompt(rec ir.Record, snap memory.Snapshot, now time.Time, loc *time.Location) (string, error) {
	record, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	mem, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode memory: %w", err)
	}

	var b strings.Builder
	b.WriteString(promptRules)
	fmt.Fprintf(&b, "\n\nNow: %s\nLocal zone: %s\n", now.Format(time.RFC3339), loc)
	fmt.Fprintf(&b, "\nMemory (%d entries, newest first):\n%s\n", len(snap.Entries), mem)
	fmt.Fprintf(&b, "\nMessage:\n%s\n", record)
	return b.String(), nil
}
