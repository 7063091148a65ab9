// Package config loads recon settings from a TOML file, overlays secrets
// from the environment, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roach88/recon/internal/plan"
	"github.com/roach88/recon/internal/store"
)

// Environment variables that override file values. Secrets belong here
// rather than in the file.
const (
	EnvGeminiAPIKey       = "RECON_GEMINI_API_KEY"
	EnvGoogleToken        = "RECON_GOOGLE_TOKEN"
	EnvGoogleRefreshToken = "RECON_GOOGLE_REFRESH_TOKEN"
	EnvGoogleClientID     = "RECON_GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "RECON_GOOGLE_CLIENT_SECRET"
	EnvDatabaseURL        = "RECON_DATABASE_URL"
)

// Planner providers.
const (
	PlannerFile   = "file"
	PlannerGemini = "gemini"
)

// Adapter providers.
const (
	ProviderGoogle = "google"
	ProviderMemory = "memory"
	ProviderNone   = "none"
)

type Config struct {
	Timezone   string
	History    History
	Pass       Pass
	Scheduling Scheduling
	Planner    Planner
	Google     Google
	Calendar   Calendar
	Tasks      Tasks
	Server     Server
	Metrics    Metrics
}

type History struct {
	Driver          string
	Path            string
	DSN             string
	WindowDays      int
	MaxRowsRead     int
	SnapshotEntries int
	SnapshotMemos   int
}

type Pass struct {
	Interval    time.Duration
	LockTimeout time.Duration
	LeaseTTL    time.Duration
	DryRun      bool
	Fallback    bool
	MaxItems    int
	Inbox       string
}

type Scheduling struct {
	DefaultDuration time.Duration
	DeadlineTime    string // HH:MM, local
	TitlePrefix     string
}

type Planner struct {
	Provider    string
	PlanFile    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
}

// Google holds the OAuth2 credentials shared by the calendar and task
// adapters.
type Google struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

type Calendar struct {
	Provider   string
	CalendarID string
	BaseURL    string
}

type Tasks struct {
	Provider string
	ListID   string
	BaseURL  string
}

type Server struct {
	Addr        string
	CORSOrigins []string
}

type Metrics struct {
	Enabled   bool
	Namespace string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Timezone: "Local",
		History: History{
			Driver:          store.DriverSQLite,
			Path:            "recon.db",
			WindowDays:      62,
			MaxRowsRead:     store.DefaultMaxRowsRead,
			SnapshotEntries: 600,
			SnapshotMemos:   120,
		},
		Pass: Pass{
			Interval:    10 * time.Minute,
			LockTimeout: 10 * time.Second,
			LeaseTTL:    10 * time.Minute,
			Fallback:    true,
			MaxItems:    plan.DefaultMaxItems,
			Inbox:       "inbox",
		},
		Scheduling: Scheduling{
			DefaultDuration: 60 * time.Minute,
			DeadlineTime:    "17:00",
		},
		Planner: Planner{
			Provider:    PlannerFile,
			Temperature: 0.2,
			Timeout:     90 * time.Second,
		},
		Google: Google{
			Timeout: 30 * time.Second,
		},
		Calendar: Calendar{Provider: ProviderMemory, CalendarID: "primary"},
		Tasks:    Tasks{Provider: ProviderMemory, ListID: "@default"},
		Server:   Server{Addr: "127.0.0.1:8080"},
		Metrics:  Metrics{Enabled: true, Namespace: "recon"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file. The result is not validated; callers
// apply flag overrides first and then call Validate.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg, getenv)
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, name string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Planner.APIKey, EnvGeminiAPIKey)
	set(&cfg.Google.AccessToken, EnvGoogleToken)
	set(&cfg.Google.RefreshToken, EnvGoogleRefreshToken)
	set(&cfg.Google.ClientID, EnvGoogleClientID)
	set(&cfg.Google.ClientSecret, EnvGoogleClientSecret)
	set(&cfg.History.DSN, EnvDatabaseURL)
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	switch tz := strings.TrimSpace(c.Timezone); tz {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", tz, err)
		}
		return loc, nil
	}
}

// DeadlineClock parses scheduling.deadline_time.
func (c Config) DeadlineClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.Scheduling.DeadlineTime))
	if err != nil {
		return 0, 0, fmt.Errorf("scheduling.deadline_time %q: want HH:MM", c.Scheduling.DeadlineTime)
	}
	return t.Hour(), t.Minute(), nil
}

// Window is the history window as a duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.History.WindowDays) * 24 * time.Hour
}

// Validate reports every impossible value at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.DeadlineClock(); err != nil {
		errs = append(errs, err)
	}

	switch c.History.Driver {
	case store.DriverSQLite:
		if strings.TrimSpace(c.History.Path) == "" {
			add("history.path is required for the sqlite driver")
		}
	case store.DriverPostgres:
		if strings.TrimSpace(c.History.DSN) == "" {
			add("history.dsn or %s is required for the postgres driver", EnvDatabaseURL)
		}
	case store.DriverMemory:
	default:
		add("history.driver %q: want sqlite, postgres or memory", c.History.Driver)
	}
	if c.History.WindowDays <= 0 {
		add("history.window_days must be positive, got %d", c.History.WindowDays)
	}
	if c.History.MaxRowsRead <= 0 {
		add("history.max_rows_read must be positive, got %d", c.History.MaxRowsRead)
	}
	if c.History.SnapshotEntries < 0 || c.History.SnapshotMemos < 0 {
		add("history snapshot limits must not be negative")
	}

	if c.Pass.Interval <= 0 {
		add("pass.interval must be positive, got %s", c.Pass.Interval)
	}
	if c.Pass.LockTimeout < 0 {
		add("pass.lock_timeout must not be negative, got %s", c.Pass.LockTimeout)
	}
	if c.Pass.LeaseTTL <= 0 {
		add("pass.lease_ttl must be positive, got %s", c.Pass.LeaseTTL)
	}
	if c.Pass.MaxItems < 1 || c.Pass.MaxItems > plan.HardMaxItems {
		add("pass.max_items must be in [1, %d], got %d", plan.HardMaxItems, c.Pass.MaxItems)
	}

	if c.Scheduling.DefaultDuration <= 0 {
		add("scheduling.default_duration must be positive, got %s", c.Scheduling.DefaultDuration)
	}

	switch c.Planner.Provider {
	case PlannerFile:
		if strings.TrimSpace(c.Planner.PlanFile) == "" {
			add("planner.plan_file is required for the file planner")
		}
	case PlannerGemini:
		if strings.TrimSpace(c.Planner.APIKey) == "" {
			add("%s is required for the gemini planner", EnvGeminiAPIKey)
		}
	default:
		add("planner.provider %q: want file or gemini", c.Planner.Provider)
	}
	if c.Planner.Temperature < 0 || c.Planner.Temperature > 2 {
		add("planner.temperature must be in [0, 2], got %g", c.Planner.Temperature)
	}

	for _, a := range []struct{ name, provider string }{
		{"calendar", c.Calendar.Provider},
		{"tasks", c.Tasks.Provider},
	} {
		name, provider := a.name, a.provider
		switch provider {
		case ProviderMemory, ProviderNone:
		case ProviderGoogle:
			if c.Google.AccessToken == "" && c.Google.RefreshToken == "" {
				add("%s.provider google needs %s or %s", name, EnvGoogleToken, EnvGoogleRefreshToken)
			}
		default:
			add("%s.provider %q: want google, memory or none", name, provider)
		}
	}

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Namespace) == "" {
		add("metrics.namespace is required when metrics are enabled")
	}
	return errors.Join(errs...)
}
