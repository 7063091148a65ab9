package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/plan"
)

// LintResult is the JSON payload of the lint command.
type LintResult struct {
	File   string           `json:"file"`
	Valid  bool             `json:"valid"`
	Issues []plan.LintIssue `json:"issues"`
}

// NewLintCommand creates the lint command.
func NewLintCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint <plan-file>",
		Short: "Check a planner payload against the plan schema",
		Long: `Check a planner payload (JSON or YAML) against the strict plan schema.

The engine itself is lenient and coerces what it can; lint reports every
place a payload relies on that coercion. Use it when developing prompts or
hand-writing plans for recon run --plan.

Exit codes:
  0 - payload is valid
  1 - payload has schema issues
  2 - file could not be read`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLint(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runLint(cmd *cobra.Command, opts *RootOptions, path string) error {
	out := opts.formatter(cmd.OutOrStdout())

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read plan", err)
	}

	issues := plan.Lint(data)
	result := LintResult{File: path, Valid: len(issues) == 0, Issues: issues}

	if out.JSON() {
		if result.Valid {
			if err := out.Success(result); err != nil {
				return err
			}
		} else if err := out.Error(CodeLint, fmt.Sprintf("%d issue(s)", len(issues)), result); err != nil {
			return err
		}
	} else {
		var b strings.Builder
		for _, is := range issues {
			if is.Line > 0 {
				fmt.Fprintf(&b, "%s:%d: %s\n", path, is.Line, is.Error())
			} else {
				fmt.Fprintf(&b, "%s: %s\n", path, is.Error())
			}
		}
		if result.Valid {
			fmt.Fprintf(&b, "✓ %s is a valid plan", path)
		} else {
			fmt.Fprintf(&b, "✗ %d issue(s)", len(issues))
		}
		if err := out.Success(b.String()); err != nil {
			return err
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d lint issue(s)", len(issues)))
	}
	return nil
}
