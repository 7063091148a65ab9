package store

import (
	"context"
	"fmt"
	"strings"
)

// Drivers accepted by New.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Driver string
	Path   string // sqlite file
	DSN    string // postgres connection string
}

// New opens the configured backend. An empty driver picks postgres when a
// DSN is set and sqlite otherwise.
func New(ctx context.Context, opts Options) (Backend, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" {
		driver = DriverSQLite
		if strings.TrimSpace(opts.DSN) != "" {
			driver = DriverPostgres
		}
	}

	switch driver {
	case DriverSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite history requires a path")
		}
		return Open(opts.Path)
	case DriverPostgres:
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, fmt.Errorf("postgres history requires a DSN")
		}
		return NewPostgresStore(ctx, opts.DSN)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", opts.Driver)
	}
}
