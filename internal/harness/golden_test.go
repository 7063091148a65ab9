package harness

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/ir"
)

func TestMarshalTrace_Deterministic(t *testing.T) {
	scenario := &Scenario{
		Name: "deterministic",
		Passes: []PassStep{{
			Record: record("r1"),
			Plan:   eventPlan("Dentist", "2026-01-12T09:00:00Z", "2026-01-12T10:00:00Z"),
		}},
	}

	var outputs [][]byte
	for range 3 {
		result, err := Run(scenario)
		require.NoError(t, err)
		data, err := MarshalTrace(scenario.Name, result)
		require.NoError(t, err)
		outputs = append(outputs, data)
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[1], outputs[2])
	assert.True(t, bytes.HasSuffix(outputs[0], []byte("}\n")))
}

func TestMarshalTrace_OmitsSingleStepChain(t *testing.T) {
	result := NewResult()
	result.Passes = append(result.Passes, PassTrace{
		Record: "r1",
		Items: []ItemTrace{
			{Title: "plain", Outcome: ir.OutcomeCreate},
			{Index: 1, Title: "fallback", Outcome: "FALLBACK_TASK_CREATE", Chain: []ir.Outcome{ir.OutcomeSkipNoTime, "FALLBACK_TASK_CREATE"}},
		},
		Calls: []Call{},
	})

	data, err := MarshalTrace("chain", result)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte(`"chain"`)))
	assert.Contains(t, string(data), `"scenario": "chain"`)
}
