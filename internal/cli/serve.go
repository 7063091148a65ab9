package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/ir"
	"github.com/roach88/recon/internal/server"
	"github.com/roach88/recon/internal/source"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Inbox    string
	Interval time.Duration
	DryRun   bool
	Once     bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Reconcile the inbox on a schedule and serve the HTTP API",
		Long: `Start the engine loop, drain the record inbox every pass.interval, and
serve /healthz, /metrics, GET /v1/outcomes and POST /v1/passes.

Reconciled record files move to <inbox>/done, unparsable ones to
<inbox>/failed. A record whose pass hit lock contention, an unavailable
planner or a history failure stays in the inbox for the next tick.

With --once the inbox is drained a single time and the command exits
without starting the HTTP server.

Examples:
  recon serve --config recon.toml
  recon serve --inbox ./inbox --addr :9090 --interval 5m
  recon serve --once --db ./recon.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&opts.Inbox, "inbox", "", "record inbox directory (overrides pass.inbox)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "inbox poll interval (overrides pass.interval)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "record what would happen without calling adapters")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "drain the inbox once and exit")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	log := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.Inbox != "" {
		cfg.Pass.Inbox = opts.Inbox
	}
	if opts.Interval > 0 {
		cfg.Pass.Interval = opts.Interval
	}
	if opts.DryRun {
		cfg.Pass.DryRun = true
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt, err := buildRuntime(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error("error closing history", "error", err)
		}
	}()

	inbox := source.NewInbox(cfg.Pass.Inbox)

	engineDone := make(chan error, 1)
	go func() { engineDone <- rt.engine.Run(ctx) }()
	defer func() {
		rt.engine.Stop()
		<-engineDone
	}()

	if opts.Once {
		n := drainInbox(ctx, inbox, rt.engine, log)
		log.Info("inbox drained", "event", "inbox_drained", "reconciled", n)
		return nil
	}

	go pollInbox(ctx, inbox, rt.engine, cfg.Pass.Interval, log)

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = reg
	}
	srv := server.New(server.Options{
		History:     rt.history,
		Engine:      rt.engine,
		Gatherer:    gatherer,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      log,
	})

	log.Info("serving",
		"addr", cfg.Server.Addr,
		"inbox", inbox.Dir(),
		"interval", cfg.Pass.Interval,
		"dry_run", cfg.Pass.DryRun,
	)
	if err := server.ListenAndServe(ctx, cfg.Server.Addr, srv.Router(), log); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	log.Info("stopped gracefully")
	return nil
}

// passSubmitter is the part of the engine the inbox loop needs.
type passSubmitter interface {
	Submit(ctx context.Context, rec ir.Record) (*engine.PassReport, error)
}

// pollInbox drains the inbox now and then once per interval until ctx is
// done.
func pollInbox(ctx context.Context, inbox *source.Inbox, sub passSubmitter, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n := drainInbox(ctx, inbox, sub, log); n > 0 {
			log.Info("inbox drained", "event", "inbox_drained", "reconciled", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drainInbox submits pending records in order and returns how many were
// reconciled. It stops at the first record whose pass should be retried
// later, leaving that file in place.
func drainInbox(ctx context.Context, inbox *source.Inbox, sub passSubmitter, log *slog.Logger) int {
	n := 0
	for {
		it, err := inbox.Next(ctx)
		if errors.Is(err, source.ErrEmpty) {
			return n
		}
		if err != nil {
			if ctx.Err() == nil {
				log.Error("inbox read failed", "event", "inbox_error", "error", err)
			}
			return n
		}

		report, err := sub.Submit(ctx, it.Record)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, engine.ErrStopped):
			case engine.IsLockContention(err):
				log.Info("record deferred: lock busy", "record", it.Record.ID, "file", it.Path)
			case engine.IsPlannerUnavailable(err):
				log.Warn("record deferred: planner unavailable", "record", it.Record.ID, "file", it.Path, "error", err)
			default:
				log.Error("record deferred", "record", it.Record.ID, "file", it.Path, "error", err)
			}
			return n
		}

		if err := inbox.Done(it); err != nil {
			// The pass is recorded; a retry would be deduplicated by history.
			log.Error("failed to archive record", "record", it.Record.ID, "file", it.Path, "error", err)
			return n
		}
		n++
		log.Debug("record reconciled", "record", it.Record.ID, "items", len(report.Items), "failed", report.Failed())
	}
}
