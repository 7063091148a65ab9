package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/roach88/recon/internal/ir"
)

// ParseError reports planner output that is not a JSON object.
type ParseError struct {
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("planner output is not a JSON object (%q): %v", e.Snippet, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Result is a normalized plan plus the coercions applied to produce it.
type Result struct {
	Plan     ir.Plan
	Warnings []string
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Normalize validates and coerces raw planner output for rec.
func Normalize(raw []byte, rec ir.Record, opts Options) (*Result, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	res := &Result{Warnings: []string{}}
	res.Plan.Classification = normalizeClassification(res, asObject(field(obj, "classification")), rec)
	res.Plan.AssistantMemo = clip(asString(field(obj, "assistant_memo", "assistantMemo")), MaxAssistantMemo)

	rawItems, ok := field(obj, "items").([]any)
	if !ok && field(obj, "items") != nil {
		res.warnf("items: expected a list, got %T; treating as empty", field(obj, "items"))
	}
	limit := opts.maxItems()
	if len(rawItems) > limit {
		res.warnf("items: %d proposed, keeping the first %d", len(rawItems), limit)
		rawItems = rawItems[:limit]
	}

	res.Plan.Items = make([]ir.ProposedItem, 0, len(rawItems))
	for i, v := range rawItems {
		m, ok := v.(map[string]any)
		if !ok {
			res.warnf("items[%d]: expected an object, got %T; dropped", i, v)
			continue
		}
		item := normalizeItem(res, i, m, rec, opts)
		item.Index = len(res.Plan.Items)
		res.Plan.Items = append(res.Plan.Items, item)
	}
	return res, nil
}

// decodeObject accepts a bare JSON object, optionally wrapped in a markdown
// code fence or surrounding prose.
func decodeObject(raw []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	var obj map[string]any
	err := json.Unmarshal(trimmed, &obj)
	if err == nil && obj != nil {
		return obj, nil
	}
	start := bytes.IndexByte(trimmed, '{')
	end := bytes.LastIndexByte(trimmed, '}')
	if start >= 0 && end > start {
		if err2 := json.Unmarshal(trimmed[start:end+1], &obj); err2 == nil && obj != nil {
			return obj, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("top-level value is not an object")
	}
	return nil, &ParseError{Snippet: clip(string(trimmed), 80), Err: err}
}

func normalizeClassification(res *Result, m map[string]any, rec ir.Record) ir.Classification {
	c := ir.Classification{
		Category:  ir.Category(upper(asString(field(m, "category", "overallCategory")))),
		Priority:  ir.Priority(upper(asString(field(m, "priority")))),
		MassMail:  asBool(field(m, "mass_mail", "massMail")) || rec.HasSignal(ir.SignalMassMail),
		Reasoning: clip(asString(field(m, "reasoning")), MaxReasoningLen),
	}
	if !c.Category.Valid() {
		if c.Category != "" {
			res.warnf("classification.category: unknown %q, using INFO", c.Category)
		}
		c.Category = ir.CategoryInfo
	}
	if !c.Priority.Valid() {
		if c.Priority != "" {
			res.warnf("classification.priority: unknown %q, using MEDIUM", c.Priority)
		}
		c.Priority = ir.PriorityMedium
	}
	return c
}

var kindAliases = map[string]ir.Kind{
	"CALENDAR_EVENT": ir.KindScheduledEvent,
	"EVENT":          ir.KindScheduledEvent,
	"TASK":           ir.KindDeadlineTask,
	"IGNORE":         ir.KindDiscard,
}

var opAliases = map[string]ir.Operation{
	"DELETE": ir.OpCancel,
	"NONE":   ir.OpSkip,
	"NOOP":   ir.OpSkip,
}

func normalizeItem(res *Result, i int, m map[string]any, rec ir.Record, opts Options) ir.ProposedItem {
	item := ir.ProposedItem{}

	kind := upper(asString(field(m, "kind", "itemType", "type")))
	item.Kind = ir.Kind(kind)
	if alias, ok := kindAliases[kind]; ok {
		item.Kind = alias
	}
	if !item.Kind.Valid() {
		res.warnf("items[%d].kind: unknown %q, using NOTE", i, kind)
		item.Kind = ir.KindNote
	}

	op := upper(asString(field(m, "operation", "action")))
	item.Operation = ir.Operation(op)
	if alias, ok := opAliases[op]; ok {
		item.Operation = alias
	}
	if !item.Operation.Valid() {
		if op != "" {
			res.warnf("items[%d].operation: unknown %q, using SKIP", i, op)
		}
		item.Operation = ir.OpSkip
	}

	item.Title = clip(asString(field(m, "title")), MaxTitleLen)
	if item.Title == "" {
		item.Title = clip(rec.Subject, MaxTitleLen)
	}
	if item.Title == "" {
		item.Title = untitled
	}
	item.Location = clip(asString(field(m, "location")), MaxLocationLen)
	item.Body = clip(asString(field(m, "body", "description", "notes")), MaxBodyLen)
	item.Memo = clip(asString(field(m, "memo")), MaxMemoLen)
	item.AllDay = asBool(field(m, "all_day", "allDay"))
	item.NeedsReview = asBool(field(m, "needs_review", "requiresReview"))
	item.Confidence = normalizeConfidence(field(m, "confidence"))

	loc := opts.location()
	if t, dateOnly := parseTime(asString(field(m, "start", "startTime")), loc); t != nil {
		item.Start = t
		if dateOnly {
			item.AllDay = true
		}
	}
	if t, _ := parseTime(asString(field(m, "end", "endTime")), loc); t != nil {
		item.End = t
	}
	if t, dateOnly := parseTime(asString(field(m, "deadline", "due")), loc); t != nil {
		if dateOnly {
			at := time.Date(t.Year(), t.Month(), t.Day(), opts.DeadlineHour, opts.DeadlineMinute, 0, 0, loc)
			t = &at
		}
		item.Deadline = t
	}

	target := asObject(field(m, "target"))
	item.Target = ir.Target{
		Ref:      ir.Ref(strings.TrimSpace(asString(firstNonNil(field(target, "ref"), field(m, "target_ref", "targetRef", "calendarEventId", "taskId"))))),
		MemoryID: strings.TrimSpace(asString(firstNonNil(field(target, "memory_id", "memoryId"), field(m, "memory_id", "memoryId", "targetMemoryId")))),
	}
	return item
}

func normalizeConfidence(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return DefaultConfidence
		}
		f = parsed
	default:
		return DefaultConfidence
	}
	if math.IsNaN(f) {
		return DefaultConfidence
	}
	return math.Max(0, math.Min(1, f))
}

var zonedLayouts = []string{time.RFC3339Nano, time.RFC3339}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const dateLayout = "2006-01-02"

// parseTime reads an instant in one of the accepted layouts. Values without
// a zone are read in loc. dateOnly reports a bare calendar date, returned as
// local midnight.
func parseTime(s string, loc *time.Location) (t *time.Time, dateOnly bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	for _, layout := range zonedLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			return &v, false
		}
	}
	for _, layout := range localLayouts {
		if v, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &v, false
		}
	}
	if v, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return &v, true
	}
	return nil, false
}

// field returns the first present value among names.
func field(m map[string]any, names ...string) any {
	for _, n := range names {
		if v, ok := m[n]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstNonNil(vals ...any) any {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	}
	return false
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// clip trims s and bounds it to n runes.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
