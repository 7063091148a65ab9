package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const dentistRecord = `id: msg-001
subject: Dentist appointment confirmed
from: frontdesk@smiles.example
body: See you Monday 12 January at 09:00.
`

const dentistPlan = `{
  "classification": {"category": "ACTIONABLE", "priority": "MEDIUM"},
  "items": [
    {
      "kind": "SCHEDULED_EVENT",
      "operation": "CREATE",
      "title": "Dentist appointment",
      "start": "2026-01-12T09:00:00Z",
      "end": "2026-01-12T10:00:00Z"
    }
  ]
}`
