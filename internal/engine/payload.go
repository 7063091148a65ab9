package engine

import (
	"strings"
	"time"

	"github.com/roach88/recon/internal/adapter"
	"github.com/roach88/recon/internal/ir"
)

// eventStart is the instant an event is placed at. An all-day event with
// no start takes its day from the deadline.
func eventStart(item ir.ProposedItem) *time.Time {
	if item.Start != nil {
		return item.Start
	}
	if item.AllDay && item.Deadline != nil {
		return item.Deadline
	}
	return nil
}

// eventSpec builds the calendar payload. Callers check eventStart first.
func (e *Engine) eventSpec(pc *passContext, item ir.ProposedItem) adapter.EventSpec {
	start := *eventStart(item)
	spec := adapter.EventSpec{
		Title:       item.Title,
		Description: composeNotes(item, pc.rec),
		Location:    item.Location,
		AllDay:      item.AllDay,
		Reminders:   adapter.Reminders(pc.classification.Priority),
	}
	if prefix := strings.TrimSpace(e.sched.TitlePrefix); prefix != "" {
		spec.Title = prefix + " " + item.Title
	}

	if item.AllDay {
		// Whole days in the configured zone; the end day is exclusive.
		loc := e.sched.Location
		s := start.In(loc)
		spec.Start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
		spec.End = spec.Start.AddDate(0, 0, 1)
		if item.End != nil {
			en := item.End.In(loc)
			last := time.Date(en.Year(), en.Month(), en.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
			if last.After(spec.End) {
				spec.End = last
			}
		}
		return spec
	}

	spec.Start = start
	spec.End = start.Add(e.sched.DefaultDuration)
	if item.End != nil && item.End.After(start) {
		spec.End = *item.End
	}
	return spec
}

// taskSpec builds the task payload. The due instant is the deadline, or
// the start when a timed item was routed to a task.
func (e *Engine) taskSpec(pc *passContext, item ir.ProposedItem) adapter.TaskSpec {
	spec := adapter.TaskSpec{
		Title: item.Title,
		Notes: composeNotes(item, pc.rec),
	}
	switch {
	case item.Deadline != nil:
		due := *item.Deadline
		spec.Due = &due
	case item.Start != nil:
		due := *item.Start
		spec.Due = &due
	}
	return spec
}

// composeNotes joins the item body, its memo, and a provenance footer
// naming the source record.
func composeNotes(item ir.ProposedItem, rec ir.Record) string {
	var parts []string
	if item.Body != "" {
		parts = append(parts, item.Body)
	}
	if item.Memo != "" {
		parts = append(parts, "Note: "+item.Memo)
	}

	var footer []string
	if rec.Subject != "" {
		footer = append(footer, "Subject: "+rec.Subject)
	}
	if rec.From != "" {
		footer = append(footer, "From: "+rec.From)
	}
	if rec.Link != "" {
		footer = append(footer, "Link: "+rec.Link)
	}
	if len(footer) > 0 {
		parts = append(parts, "--\n"+strings.Join(footer, "\n"))
	}
	return strings.Join(parts, "\n\n")
}
