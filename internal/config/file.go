package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the TOML layout. Only keys present in the file are
// copied onto the defaults.
type fileConfig struct {
	Timezone string `toml:"timezone"`

	History struct {
		Driver          string `toml:"driver"`
		Path            string `toml:"path"`
		DSN             string `toml:"dsn"`
		WindowDays      int    `toml:"window_days"`
		MaxRowsRead     int    `toml:"max_rows_read"`
		SnapshotEntries int    `toml:"snapshot_entries"`
		SnapshotMemos   int    `toml:"snapshot_memos"`
	} `toml:"history"`

	Pass struct {
		Interval    string `toml:"interval"`
		LockTimeout string `toml:"lock_timeout"`
		LeaseTTL    string `toml:"lease_ttl"`
		DryRun      bool   `toml:"dry_run"`
		Fallback    bool   `toml:"fallback"`
		MaxItems    int    `toml:"max_items"`
		Inbox       string `toml:"inbox"`
	} `toml:"pass"`

	Scheduling struct {
		DefaultDuration string `toml:"default_duration"`
		DeadlineTime    string `toml:"deadline_time"`
		TitlePrefix     string `toml:"title_prefix"`
	} `toml:"scheduling"`

	Planner struct {
		Provider    string  `toml:"provider"`
		PlanFile    string  `toml:"plan_file"`
		Model       string  `toml:"model"`
		BaseURL     string  `toml:"base_url"`
		Temperature float64 `toml:"temperature"`
		Timeout     string  `toml:"timeout"`
	} `toml:"planner"`

	Google struct {
		ClientID string `toml:"client_id"`
		TokenURL string `toml:"token_url"`
		Timeout  string `toml:"timeout"`
	} `toml:"google"`

	Calendar struct {
		Provider   string `toml:"provider"`
		CalendarID string `toml:"calendar_id"`
		BaseURL    string `toml:"base_url"`
	} `toml:"calendar"`

	Tasks struct {
		Provider string `toml:"provider"`
		ListID   string `toml:"list_id"`
		BaseURL  string `toml:"base_url"`
	} `toml:"tasks"`

	Server struct {
		Addr        string   `toml:"addr"`
		CORSOrigins []string `toml:"cors_origins"`
	} `toml:"server"`

	Metrics struct {
		Enabled   bool   `toml:"enabled"`
		Namespace string `toml:"namespace"`
	} `toml:"metrics"`
}

// overlay copies one decoded value onto cfg when the file defines it.
type overlay struct {
	meta toml.MetaData
	errs []string
}

func (o *overlay) str(dst *string, v string, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = strings.TrimSpace(v)
	}
}

func (o *overlay) dur(dst *time.Duration, v string, key ...string) {
	if !o.meta.IsDefined(key...) {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		o.errs = append(o.errs, fmt.Sprintf("%s: %v", strings.Join(key, "."), err))
		return
	}
	*dst = d
}

func set[T any](o *overlay, dst *T, v T, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = v
	}
}

func decodeFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}

	o := &overlay{meta: meta}
	o.str(&cfg.Timezone, raw.Timezone, "timezone")

	o.str(&cfg.History.Driver, raw.History.Driver, "history", "driver")
	o.str(&cfg.History.Path, raw.History.Path, "history", "path")
	o.str(&cfg.History.DSN, raw.History.DSN, "history", "dsn")
	set(o, &cfg.History.WindowDays, raw.History.WindowDays, "history", "window_days")
	set(o, &cfg.History.MaxRowsRead, raw.History.MaxRowsRead, "history", "max_rows_read")
	set(o, &cfg.History.SnapshotEntries, raw.History.SnapshotEntries, "history", "snapshot_entries")
	set(o, &cfg.History.SnapshotMemos, raw.History.SnapshotMemos, "history", "snapshot_memos")

	o.dur(&cfg.Pass.Interval, raw.Pass.Interval, "pass", "interval")
	o.dur(&cfg.Pass.LockTimeout, raw.Pass.LockTimeout, "pass", "lock_timeout")
	o.dur(&cfg.Pass.LeaseTTL, raw.Pass.LeaseTTL, "pass", "lease_ttl")
	set(o, &cfg.Pass.DryRun, raw.Pass.DryRun, "pass", "dry_run")
	set(o, &cfg.Pass.Fallback, raw.Pass.Fallback, "pass", "fallback")
	set(o, &cfg.Pass.MaxItems, raw.Pass.MaxItems, "pass", "max_items")
	o.str(&cfg.Pass.Inbox, raw.Pass.Inbox, "pass", "inbox")

	o.dur(&cfg.Scheduling.DefaultDuration, raw.Scheduling.DefaultDuration, "scheduling", "default_duration")
	o.str(&cfg.Scheduling.DeadlineTime, raw.Scheduling.DeadlineTime, "scheduling", "deadline_time")
	o.str(&cfg.Scheduling.TitlePrefix, raw.Scheduling.TitlePrefix, "scheduling", "title_prefix")

	o.str(&cfg.Planner.Provider, raw.Planner.Provider, "planner", "provider")
	o.str(&cfg.Planner.PlanFile, raw.Planner.PlanFile, "planner", "plan_file")
	o.str(&cfg.Planner.Model, raw.Planner.Model, "planner", "model")
	o.str(&cfg.Planner.BaseURL, raw.Planner.BaseURL, "planner", "base_url")
	set(o, &cfg.Planner.Temperature, raw.Planner.Temperature, "planner", "temperature")
	o.dur(&cfg.Planner.Timeout, raw.Planner.Timeout, "planner", "timeout")

	o.str(&cfg.Google.ClientID, raw.Google.ClientID, "google", "client_id")
	o.str(&cfg.Google.TokenURL, raw.Google.TokenURL, "google", "token_url")
	o.dur(&cfg.Google.Timeout, raw.Google.Timeout, "google", "timeout")

	o.str(&cfg.Calendar.Provider, raw.Calendar.Provider, "calendar", "provider")
	o.str(&cfg.Calendar.CalendarID, raw.Calendar.CalendarID, "calendar", "calendar_id")
	o.str(&cfg.Calendar.BaseURL, raw.Calendar.BaseURL, "calendar", "base_url")

	o.str(&cfg.Tasks.Provider, raw.Tasks.Provider, "tasks", "provider")
	o.str(&cfg.Tasks.ListID, raw.Tasks.ListID, "tasks", "list_id")
	o.str(&cfg.Tasks.BaseURL, raw.Tasks.BaseURL, "tasks", "base_url")

	o.str(&cfg.Server.Addr, raw.Server.Addr, "server", "addr")
	set(o, &cfg.Server.CORSOrigins, raw.Server.CORSOrigins, "server", "cors_origins")

	set(o, &cfg.Metrics.Enabled, raw.Metrics.Enabled, "metrics", "enabled")
	o.str(&cfg.Metrics.Namespace, raw.Metrics.Namespace, "metrics", "namespace")

	if len(o.errs) > 0 {
		return fmt.Errorf("load config %s: %s", path, strings.Join(o.errs, "; "))
	}
	return nil
}
