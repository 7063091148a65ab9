package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestLintValid(t *testing.T) {
	for _, name := range []string{"valid.json", "valid.yaml"} {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, Lint(readFixture(t, name)))
		})
	}
}

func TestLintReportsViolations(t *testing.T) {
	issues := Lint(readFixture(t, "invalid.json"))
	require.NotEmpty(t, issues)
	for _, issue := range issues {
		assert.Equal(t, ErrLintShape, issue.Code)
	}

	found := false
	for _, issue := range issues {
		if strings.Contains(issue.Path, "category") {
			found = true
		}
	}
	assert.True(t, found, "category violation reported: %v", issues)
}

func TestLintSyntax(t *testing.T) {
	issues := Lint([]byte("key: [unclosed"))
	require.Len(t, issues, 1)
	assert.Equal(t, ErrLintSyntax, issues[0].Code)

	issues = Lint([]byte("- a\n- b\n"))
	require.Len(t, issues, 1)
	assert.Equal(t, ErrLintSyntax, issues[0].Code)
}

func TestLintIssueError(t *testing.T) {
	issue := LintIssue{Code: ErrLintShape, Path: "items.0.kind", Message: "bad kind"}
	assert.Equal(t, "[E203] items.0.kind: bad kind", issue.Error())
	assert.Equal(t, "[E202] oops", LintIssue{Code: ErrLintSyntax, Message: "oops"}.Error())
}
