package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/config"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/source"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Record string
	Plan   string
	DryRun bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile one record",
		Long: `Run a single reconciliation pass for one record and print the report.

The record is a YAML or JSON file. With --plan the planner answer is read
from a file instead of the configured planner, which makes a pass fully
reproducible.

Exit codes:
  0 - pass completed, or skipped because another pass held the lock
  1 - planner unavailable or history failure
  2 - command error (bad flags, unreadable record, invalid config)

Examples:
  recon run --record msg.yaml --plan plan.json --db ./recon.db
  recon run --record msg.yaml --config recon.toml --dry-run
  recon run --record msg.yaml --plan plan.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Record, "record", "r", "", "record file (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.Plan, "plan", "p", "", "read the plan from this file instead of the planner")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "record what would happen without calling adapters")
	_ = cmd.MarkFlagRequired("record")

	return cmd
}

func runPass(cmd *cobra.Command, opts *RunOptions) error {
	log := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := opts.formatter(cmd.OutOrStdout())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Plan != "" {
		cfg.Planner.Provider = config.PlannerFile
		cfg.Planner.PlanFile = opts.Plan
	}
	if opts.DryRun {
		cfg.Pass.DryRun = true
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	rec, err := source.ReadRecord(opts.Record)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read record", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error("error closing history", "error", err)
		}
	}()

	report, err := rt.engine.RunOnePass(ctx, rec)
	return reportPass(out, report, err)
}

// reportPass prints a pass result and maps its error to an exit code.
func reportPass(out *OutputFormatter, report *engine.PassReport, err error) error {
	switch {
	case err == nil:
		if out.JSON() {
			return out.Success(report)
		}
		return out.Success(renderReport(report))

	case engine.IsLockContention(err):
		// Another pass is doing the work; nothing is lost by skipping.
		if out.JSON() {
			return out.Success(map[string]any{"skipped": true, "reason": err.Error()})
		}
		return out.Success("Pass skipped: " + err.Error())

	case engine.IsPlannerUnavailable(err):
		_ = out.Error(CodePlannerUnavailable, err.Error(), nil)
		return WrapExitError(ExitFailure, "planner unavailable", err)

	case engine.IsHistoryError(err):
		_ = out.Error(CodeHistory, err.Error(), report)
		if report != nil && !out.JSON() {
			fmt.Fprint(out.Writer, renderReport(report))
		}
		return WrapExitError(ExitFailure, "history failure", err)
	}
	_ = out.Error("E_PASS", err.Error(), report)
	return WrapExitError(ExitFailure, "pass failed", err)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
