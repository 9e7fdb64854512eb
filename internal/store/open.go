package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options select and configure a backend.
type Options struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
	// SeedDemo upserts DemoAccounts after opening.
	SeedDemo bool
	Logger   *slog.Logger
}

// Open creates the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var s Store
	switch opts.Driver {
	case "", DriverMemory:
		s = NewMemory()
	case DriverSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite driver requires a database path")
		}
		db, err := NewSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		s = db
	case DriverPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver requires a database url")
		}
		db, err := NewPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s = db
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}

	if opts.SeedDemo {
		if err := Seed(ctx, s, DemoAccounts); err != nil {
			s.Close()
			return nil, err
		}
	}
	logger.Info("store opened", "driver", driverName(opts.Driver), "seeded", opts.SeedDemo)
	return s, nil
}

func driverName(d string) string {
	if d == "" {
		return DriverMemory
	}
	return d
}
