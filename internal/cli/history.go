package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/server"
	"github.com/roach88/recon/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Review   bool
	Outcomes []string
	Since    string
	Record   string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the reconciliation history",
		Long: `List history entries, newest first.

--review keeps entries an operator should look at: ERROR, any SKIP
outcome, or anything flagged for review. In text output, entries marked
* carry the review flag.

Examples:
  recon history --review
  recon history --outcome CREATE,FALLBACK_TASK_CREATE --since 48h
  recon history --record msg-001 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Review, "review", false, "only entries that need attention")
	cmd.Flags().StringSliceVar(&opts.Outcomes, "outcome", nil, "only these outcomes (comma separated)")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only entries newer than a duration (48h) or RFC 3339 time")
	cmd.Flags().StringVar(&opts.Record, "record", "", "only entries for this record id")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 100, "maximum entries to show (0 for all)")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	out := opts.formatter(cmd.OutOrStdout())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	// Only history settings matter here; a planner need not be configured.
	loc, err := cfg.Location()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	f := store.Filter{
		RecordID:  strings.TrimSpace(opts.Record),
		Attention: opts.Review,
		Limit:     opts.Limit,
	}
	for _, o := range opts.Outcomes {
		if o = strings.ToUpper(strings.TrimSpace(o)); o != "" {
			f.Outcomes = append(f.Outcomes, ir.Outcome(o))
		}
	}
	if opts.Since != "" {
		since, err := server.ParseSince(opts.Since, time.Now())
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --since", err)
		}
		f.Since = since
	}

	ctx := commandContext(cmd)
	history, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer history.Close()

	entries, err := history.Search(ctx, f)
	if err != nil {
		_ = out.Error(CodeHistory, err.Error(), nil)
		return WrapExitError(ExitFailure, "history search failed", err)
	}
	if entries == nil {
		entries = []ir.MemoryEntry{}
	}

	if out.JSON() {
		return out.Success(map[string]any{"entries": entries, "count": len(entries)})
	}
	return out.Success(renderEntries(entries, loc))
}
