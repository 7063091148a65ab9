package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all reconciliation history",
		Long: `Delete every history entry.

After a reset the engine has no memory of what it already created, so
the next pass over an old record creates its events and tasks again.
Calendar events and tasks themselves are not touched.

Requires --yes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to delete history without --yes")
			}
			return runReset(cmd, rootOpts)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all history")
	return cmd
}

func runReset(cmd *cobra.Command, opts *RootOptions) error {
	log := newLogger(opts, cmd.ErrOrStderr())
	out := opts.formatter(cmd.OutOrStdout())

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	history, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer history.Close()

	n, err := history.Reset(ctx)
	if err != nil {
		_ = out.Error(CodeHistory, err.Error(), nil)
		return WrapExitError(ExitFailure, "reset failed", err)
	}
	log.Warn("history reset", "event", "history_reset", "deleted", n, "driver", cfg.History.Driver)

	if out.JSON() {
		return out.Success(map[string]any{"deleted": n})
	}
	return out.Success(fmt.Sprintf("Deleted %d history entries.", n))
}
