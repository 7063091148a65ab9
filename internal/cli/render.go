package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/ir"
)

// renderReport formats a pass report as an aligned table.
func renderReport(r *engine.PassReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pass %s for record %s", r.PassID, r.RecordID)
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	fmt.Fprintf(&b, "\nClassification: %s / %s\n", r.Classification.Category, r.Classification.Priority)
	if r.AssistantMemo != "" {
		fmt.Fprintf(&b, "Memo: %s\n", r.AssistantMemo)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	if len(r.Items) == 0 {
		b.WriteString("No items proposed.\n")
		return b.String()
	}

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKIND\tREQUESTED\tOUTCOME\tMEMORY_ID\tREF\tTITLE")
	for _, it := range r.Items {
		outcome := string(it.Outcome)
		if len(it.Chain) > 1 {
			outcome = joinOutcomes(it.Chain)
		}
		if it.NeedsReview {
			outcome += " *"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.Index, it.Kind, it.Requested, outcome, dash(it.MemoryID), dash(string(it.Ref)), it.Title)
	}
	tw.Flush()

	failed := 0
	for _, it := range r.Items {
		if it.Error != "" {
			fmt.Fprintf(&b, "item %d: %s\n", it.Index, it.Error)
			failed++
		}
	}
	fmt.Fprintf(&b, "%d items, %d failed\n", len(r.Items), failed)
	return b.String()
}

// renderEntries formats history entries as an aligned table.
func renderEntries(entries []ir.MemoryEntry, loc *time.Location) string {
	if len(entries) == 0 {
		return "No entries.\n"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tOBSERVED\tRECORD\tKIND\tOUTCOME\tMEMORY_ID\tREF\tTITLE")
	for _, e := range entries {
		outcome := string(e.Outcome)
		if e.NeedsReview {
			outcome += " *"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Seq, e.ObservedAt.In(loc).Format("2006-01-02 15:04"), e.RecordID, e.Kind, outcome,
			dash(e.MemoryID), dash(string(e.Ref)), e.Title)
	}
	tw.Flush()
	fmt.Fprintf(&b, "%d entries\n", len(entries))
	return b.String()
}

func joinOutcomes(chain []ir.Outcome) string {
	parts := make([]string, len(chain))
	for i, o := range chain {
		parts[i] = string(o)
	}
	return strings.Join(parts, " > ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
