package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/recon/internal/adapter"
	"github.com/roach88/recon/internal/config"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/planner"
	"github.com/roach88/recon/internal/store"
)

const leasePoll = 250 * time.Millisecond

// loadConfig reads the config file and applies global flag overrides. The
// caller applies its own flags and then validates.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DB != "" {
		cfg.History.Driver = store.DriverSQLite
		cfg.History.Path = opts.DB
	}
	return cfg, nil
}

func validateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	return nil
}

func openHistory(ctx context.Context, cfg config.Config) (store.Backend, error) {
	backend, err := store.New(ctx, store.Options{
		Driver: cfg.History.Driver,
		Path:   cfg.History.Path,
		DSN:    cfg.History.DSN,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open history", err)
	}
	return backend, nil
}

// runtime is everything a pass needs, built from config.
type runtime struct {
	history store.Backend
	engine  *engine.Engine
}

func (r *runtime) Close() error {
	return r.history.Close()
}

// buildRuntime opens history and wires the planner, adapters, lock and
// metrics into an engine. reg may be nil to skip metrics.
func buildRuntime(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (*runtime, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	hour, minute, err := cfg.DeadlineClock()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	pl, err := buildPlanner(cfg, loc)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure planner", err)
	}
	cal, tasks, err := buildAdapters(ctx, cfg, loc)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure adapters", err)
	}

	history, err := openHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []engine.EngineOption{
		engine.WithLogger(log),
		engine.WithLocker(engine.ChainLockers(
			engine.NewMutexLocker(),
			engine.NewLeaseLocker(history, cfg.Pass.LeaseTTL, leasePoll),
		)),
		engine.WithWindow(cfg.Window()),
		engine.WithMaxRowsRead(cfg.History.MaxRowsRead),
		engine.WithSnapshotLimits(cfg.History.SnapshotEntries, cfg.History.SnapshotMemos),
		engine.WithLockTimeout(cfg.Pass.LockTimeout),
		engine.WithDryRun(cfg.Pass.DryRun),
		engine.WithFallback(cfg.Pass.Fallback),
		engine.WithMaxItems(cfg.Pass.MaxItems),
		engine.WithScheduling(engine.Scheduling{
			Location:        loc,
			DefaultDuration: cfg.Scheduling.DefaultDuration,
			DeadlineHour:    hour,
			DeadlineMinute:  minute,
			TitlePrefix:     cfg.Scheduling.TitlePrefix,
		}),
	}
	if reg != nil && cfg.Metrics.Enabled {
		opts = append(opts, engine.WithMetrics(engine.NewMetrics(reg, cfg.Metrics.Namespace)))
	}

	log.Debug("runtime ready",
		"history", cfg.History.Driver,
		"planner", cfg.Planner.Provider,
		"calendar", cfg.Calendar.Provider,
		"tasks", cfg.Tasks.Provider,
		"dry_run", cfg.Pass.DryRun,
	)
	return &runtime{
		history: history,
		engine:  engine.New(history, pl, cal, tasks, opts...),
	}, nil
}

func buildPlanner(cfg config.Config, loc *time.Location) (engine.Planner, error) {
	switch cfg.Planner.Provider {
	case config.PlannerFile:
		if cfg.Planner.PlanFile == "" {
			return nil, errors.New("planner.plan_file is required for the file planner")
		}
		return planner.NewFilePlanner(cfg.Planner.PlanFile), nil
	case config.PlannerGemini:
		return planner.NewGeminiPlanner(planner.GeminiConfig{
			APIKey:      cfg.Planner.APIKey,
			Model:       cfg.Planner.Model,
			BaseURL:     cfg.Planner.BaseURL,
			Temperature: cfg.Planner.Temperature,
			Timeout:     cfg.Planner.Timeout,
			Location:    loc,
		})
	}
	return nil, fmt.Errorf("unknown planner provider %q", cfg.Planner.Provider)
}

// buildAdapters returns nil for a provider set to none; the engine then
// records SKIP_ADAPTER_UNAVAILABLE for items that need it.
func buildAdapters(ctx context.Context, cfg config.Config, loc *time.Location) (adapter.Calendar, adapter.Tasks, error) {
	var client *http.Client
	if cfg.Calendar.Provider == config.ProviderGoogle || cfg.Tasks.Provider == config.ProviderGoogle {
		c, err := adapter.NewHTTPClient(ctx, adapter.Credentials{
			AccessToken:  cfg.Google.AccessToken,
			RefreshToken: cfg.Google.RefreshToken,
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			TokenURL:     cfg.Google.TokenURL,
		}, cfg.Google.Timeout)
		if err != nil {
			return nil, nil, err
		}
		client = c
	}

	// Google wants an IANA name; the host zone has none to send.
	tz := loc.String()
	if tz == "Local" {
		tz = ""
	}

	var cal adapter.Calendar
	switch cfg.Calendar.Provider {
	case config.ProviderGoogle:
		c, err := adapter.NewGoogleCalendar(ctx, client, cfg.Calendar.BaseURL, cfg.Calendar.CalendarID, tz)
		if err != nil {
			return nil, nil, err
		}
		cal = c
	case config.ProviderMemory:
		cal = adapter.NewMemoryCalendar()
	case config.ProviderNone:
	default:
		return nil, nil, fmt.Errorf("unknown calendar provider %q", cfg.Calendar.Provider)
	}

	var tasks adapter.Tasks
	switch cfg.Tasks.Provider {
	case config.ProviderGoogle:
		t, err := adapter.NewGoogleTasks(ctx, client, cfg.Tasks.BaseURL, cfg.Tasks.ListID)
		if err != nil {
			return nil, nil, err
		}
		tasks = t
	case config.ProviderMemory:
		tasks = adapter.NewMemoryTasks()
	case config.ProviderNone:
	default:
		return nil, nil, fmt.Errorf("unknown tasks provider %q", cfg.Tasks.Provider)
	}
	return cal, tasks, nil
}
