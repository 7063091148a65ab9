package plan

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Lint error codes.
const (
	ErrLintSchema = "E201" // embedded schema failed to compile
	ErrLintSyntax = "E202" // payload is not JSON or YAML
	ErrLintShape  = "E203" // payload violates the plan schema
)

// LintIssue is one schema violation.
type LintIssue struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (i LintIssue) Error() string {
	if i.Path != "" {
		return fmt.Sprintf("[%s] %s: %s", i.Code, i.Path, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Code, i.Message)
}

// Lint checks a planner payload (JSON or YAML) against the plan schema and
// returns every violation. An empty result means the payload would pass
// Normalize without coercion of shape or enums.
func Lint(data []byte) []LintIssue {
	jsonData, err := toJSON(data)
	if err != nil {
		return []LintIssue{{Code: ErrLintSyntax, Message: err.Error()}}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []LintIssue{{Code: ErrLintSchema, Message: err.Error()}}
	}
	def := schema.LookupPath(cue.ParsePath("#Plan"))

	val := ctx.CompileBytes(jsonData, cue.Filename("plan.json"))
	if err := val.Err(); err != nil {
		return issuesFrom(ErrLintSyntax, err)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return issuesFrom(ErrLintShape, err)
	}
	return []LintIssue{}
}

func issuesFrom(code string, err error) []LintIssue {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return []LintIssue{{Code: code, Message: err.Error()}}
	}
	issues := make([]LintIssue, 0, len(errs))
	for _, e := range errs {
		issue := LintIssue{
			Code:    code,
			Path:    strings.Join(e.Path(), "."),
			Message: strings.TrimSpace(fmt.Sprint(e)),
		}
		for _, pos := range errors.Positions(e) {
			if pos.Filename() == "plan.json" {
				issue.Line = pos.Line()
				break
			}
		}
		issues = append(issues, issue)
	}
	return issues
}

// toJSON passes JSON through and converts YAML.
func toJSON(data []byte) ([]byte, error) {
	if json.Valid(data) {
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("neither JSON nor YAML: %w", err)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("top-level value is %T, want an object", v)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("convert YAML: %w", err)
	}
	return out, nil
}
