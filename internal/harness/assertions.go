package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/recon/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Calls    []Call // adapter calls for context
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Calls) > 0 {
		fmt.Fprintf(&buf, "\nAdapter calls:\n")
		for i, c := range e.Calls {
			fmt.Fprintf(&buf, "  [%d] %s %s %q", i+1, c.Op, c.Ref, c.Title)
			if c.Error != "" {
				fmt.Fprintf(&buf, " error=%q", c.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// assertCallCount checks that op was called exactly Count times.
func assertCallCount(calls []Call, a Assertion) error {
	count := 0
	for _, c := range calls {
		if c.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d calls to %s", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d calls", count),
			Calls:    calls,
		}
	}
	return nil
}

// assertCallOrder checks that the first occurrence of each op appears in
// the given order. Other calls may come in between.
func assertCallOrder(calls []Call, a Assertion) error {
	positions := make(map[string]int)
	for i, c := range calls {
		if _, seen := positions[c.Op]; !seen {
			positions[c.Op] = i + 1
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Calls:    calls,
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Calls: calls,
			}
		}
	}
	return nil
}

// assertResourceCount checks how many resources an adapter holds at the end.
func assertResourceCount(live map[string]int, a Assertion) error {
	if got := live[a.Adapter]; got != a.Count {
		return &AssertionError{
			Type:     AssertResourceCount,
			Expected: fmt.Sprintf("%d live %s resources", a.Count, a.Adapter),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

// assertEntryCount checks how many history entries match Where.
func assertEntryCount(entries []map[string]any, a Assertion) error {
	matched, err := selectEntries(entries, a.Where)
	if err != nil {
		return err
	}
	if len(matched) != a.Count {
		return &AssertionError{
			Type:     AssertEntryCount,
			Expected: fmt.Sprintf("%d entries where %s", a.Count, formatWhere(a.Where)),
			Actual:   fmt.Sprintf("%d entries", len(matched)),
		}
	}
	return nil
}

// assertEntry checks the newest entry matching Where against Expect,
// using subset semantics.
func assertEntry(entries []map[string]any, a Assertion) error {
	matched, err := selectEntries(entries, a.Where)
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		return &AssertionError{
			Type:     AssertEntry,
			Expected: fmt.Sprintf("entry where %s", formatWhere(a.Where)),
			Actual:   "no matching entry",
		}
	}
	newest := matched[len(matched)-1]

	expect, err := normalize(a.Expect)
	if err != nil {
		return fmt.Errorf("entry expect: %w", err)
	}
	for _, k := range sortedKeys(expect) {
		if !fieldEqual(newest, k, expect[k]) {
			return &AssertionError{
				Type:     AssertEntry,
				Expected: fmt.Sprintf("%s=%v", k, expect[k]),
				Actual:   fmt.Sprintf("%s=%v", k, newest[k]),
			}
		}
	}
	return nil
}

func selectEntries(entries []map[string]any, where map[string]any) ([]map[string]any, error) {
	w, err := normalize(where)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	var out []map[string]any
	for _, e := range entries {
		if matchFields(e, w) {
			out = append(out, e)
		}
	}
	return out, nil
}

func matchFields(actual, expected map[string]any) bool {
	for k, v := range expected {
		if !fieldEqual(actual, k, v) {
			return false
		}
	}
	return true
}

// fieldEqual compares one field. A field omitted from the entry matches
// the zero value of the expected type.
func fieldEqual(actual map[string]any, key string, expected any) bool {
	v, ok := actual[key]
	if !ok {
		return expected == nil || reflect.ValueOf(expected).IsZero()
	}
	return reflect.DeepEqual(v, expected)
}

// normalize round-trips a value through JSON so YAML-decoded expectations
// and JSON-encoded entries compare with the same types.
func normalize(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func entryMaps(entries []ir.MemoryEntry) ([]map[string]any, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(any)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EvaluateAssertions checks every assertion against the result and returns
// the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	var entries []map[string]any
	if len(assertions) > 0 {
		var err error
		if entries, err = entryMaps(result.Entries); err != nil {
			return []string{fmt.Sprintf("encode history: %v", err)}
		}
	}

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCallCount:
			err = assertCallCount(result.Calls, a)
		case AssertCallOrder:
			err = assertCallOrder(result.Calls, a)
		case AssertResourceCount:
			err = assertResourceCount(result.Live, a)
		case AssertEntryCount:
			err = assertEntryCount(entries, a)
		case AssertEntry:
			err = assertEntry(entries, a)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s) failed: %v", i, a.Type, err))
		}
	}
	return errs
}
