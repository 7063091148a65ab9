package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recon/internal/ir"
)

// DefaultNow is the scenario clock when a scenario sets none.
var DefaultNow = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

// Scenario defines a sequence of passes and what they must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Timezone reads zoneless plan times and places all-day events.
	// Defaults to UTC so traces do not depend on the host.
	Timezone string `yaml:"timezone,omitempty"`

	// Now is the clock at the first pass. Defaults to DefaultNow.
	Now *time.Time `yaml:"now,omitempty"`

	// Window overrides the memory window, e.g. "720h".
	Window string `yaml:"window,omitempty"`

	// Fallback defaults to true.
	Fallback *bool `yaml:"fallback,omitempty"`

	DryRun      bool   `yaml:"dry_run,omitempty"`
	TitlePrefix string `yaml:"title_prefix,omitempty"`

	// Seed holds resources that exist in the adapters before the first pass.
	Seed Seed `yaml:"seed,omitempty"`

	Passes     []PassStep  `yaml:"passes"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Seed lists pre-existing adapter resources.
type Seed struct {
	Calendar []SeedResource `yaml:"calendar,omitempty"`
	Tasks    []SeedResource `yaml:"tasks,omitempty"`
}

type SeedResource struct {
	Ref   ir.Ref `yaml:"ref"`
	Title string `yaml:"title"`
}

// PassStep is one pass: a record, the planner's answer, and expectations.
type PassStep struct {
	// Advance moves the clock before the pass, e.g. "15m" or "1500h".
	Advance string `yaml:"advance,omitempty"`

	Record ir.Record `yaml:"record"`

	// Plan is the raw planner output: a mapping, or a string passed
	// through verbatim so malformed output can be exercised.
	Plan any `yaml:"plan"`

	// PlannerError makes the planner fail instead of answering.
	PlannerError string `yaml:"planner_error,omitempty"`

	// Fail injects adapter failures for this pass only.
	Fail []Failure `yaml:"fail,omitempty"`

	Expect *PassExpect `yaml:"expect,omitempty"`
}

// Failure makes adapter calls for a matching title fail.
type Failure struct {
	Adapter  string `yaml:"adapter"` // calendar | tasks
	Title    string `yaml:"title,omitempty"`
	Error    string `yaml:"error,omitempty"`
	NotFound bool   `yaml:"not_found,omitempty"`
}

// PassExpect checks one pass.
type PassExpect struct {
	// Outcomes are the final item outcomes in plan order.
	Outcomes []ir.Outcome `yaml:"outcomes"`

	// Error is the expected error class: planner_unavailable,
	// lock_contention, history_error. Empty means the pass succeeds.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the end state of a scenario.
type Assertion struct {
	Type string `yaml:"type"`

	// Op is an adapter operation such as calendar.create (call_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected relative order (call_order).
	Ops []string `yaml:"ops,omitempty"`

	// Adapter is calendar or tasks (resource_count).
	Adapter string `yaml:"adapter,omitempty"`

	// Where selects history entries by field (entry, entry_count).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect is a subset match on the newest selected entry (entry).
	Expect map[string]any `yaml:"expect,omitempty"`

	Count int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertCallCount     = "call_count"
	AssertCallOrder     = "call_order"
	AssertEntryCount    = "entry_count"
	AssertEntry         = "entry"
	AssertResourceCount = "resource_count"
)

// Pass error classes.
const (
	ErrClassPlanner = "planner_unavailable"
	ErrClassLock    = "lock_contention"
	ErrClassHistory = "history_error"
	ErrClassOther   = "error"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos do not silently disable a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Passes) == 0 {
		return fmt.Errorf("passes must contain at least one pass")
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if s.Window != "" {
		if d, err := time.ParseDuration(s.Window); err != nil || d <= 0 {
			return fmt.Errorf("window: want a positive duration, got %q", s.Window)
		}
	}
	for i, p := range s.Passes {
		if p.Advance != "" {
			if d, err := time.ParseDuration(p.Advance); err != nil || d < 0 {
				return fmt.Errorf("passes[%d].advance: want a non-negative duration, got %q", i, p.Advance)
			}
		}
		if p.Plan == nil && p.PlannerError == "" {
			return fmt.Errorf("passes[%d]: plan or planner_error is required", i)
		}
		for j, f := range p.Fail {
			if f.Adapter != "calendar" && f.Adapter != "tasks" {
				return fmt.Errorf("passes[%d].fail[%d]: adapter must be calendar or tasks", i, j)
			}
			if f.Error == "" && !f.NotFound {
				return fmt.Errorf("passes[%d].fail[%d]: error or not_found is required", i, j)
			}
		}
		if p.Expect != nil {
			switch p.Expect.Error {
			case "", ErrClassPlanner, ErrClassLock, ErrClassHistory, ErrClassOther:
			default:
				return fmt.Errorf("passes[%d].expect.error: unknown class %q", i, p.Expect.Error)
			}
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertCallCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for call_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertCallOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for call_order", index)
		}
	case AssertEntryCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for entry_count", index)
		}
	case AssertEntry:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for entry", index)
		}
	case AssertResourceCount:
		if a.Adapter != "calendar" && a.Adapter != "tasks" {
			return fmt.Errorf("assertions[%d]: adapter must be calendar or tasks for resource_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
