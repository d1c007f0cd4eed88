package storage

import (
	"context"
	"fmt"

	"flightops/internal/flightplan"
	"flightops/internal/logbook"
	"flightops/internal/provision"
	"flightops/internal/refdata"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds the settings of every storage backend. Only the one named by Backend is
// opened; ClickHouse is opened separately as an event sink.
type Config struct {
	Backend    string
	SQLitePath string
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendMemory,
		SQLitePath: "flightops.db",
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "flightops",
			User:     "default",
			Password: "",
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "flightops",
			User:     "flightops",
			Password: "flightops",
		},
	}
}

// Backend is everything the engine persists, behind one connection.
type Backend interface {
	refdata.AerodromeResolver
	refdata.AircraftResolver
	refdata.Seeder
	logbook.Store
	flightplan.Store
	provision.Directory

	ListAerodromes(ctx context.Context) ([]refdata.Aerodrome, error)
	Close() error
}

var (
	_ Backend = (*PostgresDB)(nil)
	_ Backend = (*SQLiteDB)(nil)
	_ Backend = (*MemoryDB)(nil)

	_ logbook.Publisher = (*ClickHouseDB)(nil)
)

// Open opens the configured backend and makes sure its schema exists.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryDB(), nil

	case BackendSQLite:
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return db, nil

	case BackendPostgres:
		pg, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.CreateSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return pg, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
