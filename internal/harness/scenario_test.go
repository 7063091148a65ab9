package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/ir"
)

func TestParseScenario_Full(t *testing.T) {
	data := []byte(`
name: full
description: every field
timezone: Asia/Hong_Kong
now: 2026-02-01T09:00:00Z
window: 720h
fallback: false
dry_run: true
title_prefix: "[Email]"
seed:
  calendar:
    - {ref: evt-a, title: Existing}
passes:
  - advance: 30m
    record:
      id: r1
      subject: Hello
      from: a@example.com
      body: hi
      signals: [MASS_MAIL]
    plan:
      items:
        - {kind: EVENT, operation: CREATE, title: X, start: "2026-02-02T10:00:00"}
    fail:
      - {adapter: calendar, title: X, error: boom}
    expect:
      outcomes: [ERROR]
  - record: {id: r2}
    plan: "not json"
    expect:
      error: planner_unavailable
assertions:
  - {type: call_count, op: calendar.create, count: 1}
  - {type: call_order, ops: [calendar.create]}
  - {type: entry_count, where: {outcome: ERROR}, count: 1}
  - {type: entry, where: {record_id: r1}, expect: {needs_review: true}}
  - {type: resource_count, adapter: calendar, count: 1}
`)
	s, err := ParseScenario(data)
	require.NoError(t, err)

	assert.Equal(t, "full", s.Name)
	assert.Equal(t, "Asia/Hong_Kong", s.Timezone)
	require.NotNil(t, s.Now)
	require.NotNil(t, s.Fallback)
	assert.False(t, *s.Fallback)
	assert.True(t, s.DryRun)
	assert.Equal(t, []SeedResource{{Ref: "evt-a", Title: "Existing"}}, s.Seed.Calendar)

	require.Len(t, s.Passes, 2)
	p := s.Passes[0]
	assert.Equal(t, "30m", p.Advance)
	assert.Equal(t, "r1", p.Record.ID)
	assert.True(t, p.Record.HasSignal(ir.SignalMassMail))
	assert.Equal(t, []Failure{{Adapter: "calendar", Title: "X", Error: "boom"}}, p.Fail)
	assert.Equal(t, []ir.Outcome{ir.OutcomeError}, p.Expect.Outcomes)

	// Plan times stay strings so they reach the planner verbatim.
	items := p.Plan.(map[string]any)["items"].([]any)
	assert.Equal(t, "2026-02-02T10:00:00", items[0].(map[string]any)["start"])

	assert.Equal(t, "not json", s.Passes[1].Plan)
	assert.Len(t, s.Assertions, 5)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no name", "passes: [{plan: '{}'}]", "name is required"},
		{"no passes", "name: x", "at least one pass"},
		{"bad timezone", "name: x\ntimezone: Nowhere/Else\npasses: [{plan: '{}'}]", "timezone"},
		{"bad window", "name: x\nwindow: -1h\npasses: [{plan: '{}'}]", "window"},
		{"bad advance", "name: x\npasses: [{plan: '{}', advance: soon}]", "advance"},
		{"no plan", "name: x\npasses: [{record: {id: r}}]", "plan or planner_error"},
		{"bad adapter", "name: x\npasses: [{plan: '{}', fail: [{adapter: mail, error: e}]}]", "calendar or tasks"},
		{"empty failure", "name: x\npasses: [{plan: '{}', fail: [{adapter: tasks}]}]", "error or not_found"},
		{"bad error class", "name: x\npasses: [{plan: '{}', expect: {error: oops}}]", "unknown class"},
		{"missing type", "name: x\npasses: [{plan: '{}'}]\nassertions: [{count: 1}]", "type is required"},
		{"unknown type", "name: x\npasses: [{plan: '{}'}]\nassertions: [{type: vibes}]", "unknown assertion type"},
		{"call_count without op", "name: x\npasses: [{plan: '{}'}]\nassertions: [{type: call_count}]", "op is required"},
		{"call_order without ops", "name: x\npasses: [{plan: '{}'}]\nassertions: [{type: call_order}]", "ops list"},
		{"entry without expect", "name: x\npasses: [{plan: '{}'}]\nassertions: [{type: entry}]", "expect is required"},
		{"resource_count adapter", "name: x\npasses: [{plan: '{}'}]\nassertions: [{type: resource_count}]", "calendar or tasks"},
		{"unknown field", "name: x\nflow: []\npasses: [{plan: '{}'}]", "field flow not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		assert.Equal(t, filepath.Base(path), s.Name+".yaml", "scenario name should match its file")
	}
}
