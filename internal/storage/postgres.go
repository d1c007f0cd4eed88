package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"flightops/internal/apperr"
	"flightops/internal/refdata"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB is the PostgreSQL backend for reference data, flight plans, logbooks and the
// crew directory.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() error {
	d.pool.Close()
	return nil
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- Reference data
	CREATE TABLE IF NOT EXISTS aerodromes (
		icao            TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		coordinates     TEXT NOT NULL DEFAULT '',
		latitude        DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude       DOUBLE PRECISION NOT NULL DEFAULT 0,
		sunset          TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS aircraft (
		registration     TEXT PRIMARY KEY,
		model            TEXT NOT NULL,
		consumption_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_hours      NUMERIC(12,2) NOT NULL DEFAULT 0,
		empty_weight_kg  DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_weight_kg    DOUBLE PRECISION NOT NULL DEFAULT 0
	);

	-- Ledger
	CREATE TABLE IF NOT EXISTS logbooks (
		id                  TEXT PRIMARY KEY,
		registration        TEXT NOT NULL REFERENCES aircraft(registration),
		month               INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		year                INTEGER NOT NULL,
		previous_hours      NUMERIC(12,2) NOT NULL,
		current_hours       NUMERIC(12,2) NOT NULL,
		revision_threshold  NUMERIC(12,2) NOT NULL,
		version             BIGINT NOT NULL DEFAULT 0,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(registration, year, month)
	);

	CREATE INDEX IF NOT EXISTS idx_logbooks_period ON logbooks(year, month);

	CREATE TABLE IF NOT EXISTS logbook_entries (
		id                  TEXT PRIMARY KEY,
		logbook_id          TEXT NOT NULL REFERENCES logbooks(id),
		seq                 BIGSERIAL,
		entry_date          DATE NOT NULL,
		origin              TEXT NOT NULL,
		destination         TEXT NOT NULL,
		engine_start        TEXT NOT NULL DEFAULT '',
		departure           TEXT NOT NULL DEFAULT '',
		arrival             TEXT NOT NULL DEFAULT '',
		engine_shutdown     TEXT NOT NULL DEFAULT '',
		flight_time_total   NUMERIC(8,2) NOT NULL,
		flight_time_day     NUMERIC(8,2) NOT NULL DEFAULT 0,
		flight_time_night   NUMERIC(8,2) NOT NULL DEFAULT 0,
		instrument_hours    NUMERIC(8,2) NOT NULL DEFAULT 0,
		landings            INTEGER NOT NULL DEFAULT 0,
		fuel_added          DOUBLE PRECISION NOT NULL DEFAULT 0,
		fuel_remaining      DOUBLE PRECISION NOT NULL DEFAULT 0,
		cell_hours          NUMERIC(12,2) NOT NULL,
		pic                 TEXT NOT NULL,
		pic_hours           NUMERIC(8,2) NOT NULL DEFAULT 0,
		sic                 TEXT NOT NULL DEFAULT '',
		sic_hours           NUMERIC(8,2) NOT NULL DEFAULT 0,
		allowance           NUMERIC(10,2) NOT NULL DEFAULT 0,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_logbook_entries_logbook ON logbook_entries(logbook_id, seq);

	-- Flight plans
	CREATE TABLE IF NOT EXISTS flight_plans (
		id              TEXT PRIMARY KEY,
		registration    TEXT NOT NULL,
		status          TEXT NOT NULL,
		departure_time  TIMESTAMPTZ NOT NULL,
		plan            JSONB NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_flight_plans_registration ON flight_plans(registration, departure_time);

	-- Crew directory
	CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		email       TEXT NOT NULL UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS profiles (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		full_name   TEXT NOT NULL,
		phone       TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS crew_members (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		name        TEXT NOT NULL,
		role        TEXT NOT NULL,
		license     TEXT NOT NULL UNIQUE
	);
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func pgErrorCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}

// SeedAerodrome implements refdata.Seeder.
func (d *PostgresDB) SeedAerodrome(ctx context.Context, a refdata.Aerodrome) (bool, error) {
	tag, err := d.pool.Exec(ctx, `
		INSERT INTO aerodromes (icao, name, coordinates, latitude, longitude, sunset)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (icao) DO NOTHING
	`, refdata.NormalizeICAO(a.ICAO), a.Name, a.Coordinates, a.Latitude, a.Longitude, a.Sunset)
	if err != nil {
		return false, fmt.Errorf("insert aerodrome: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SeedAircraft implements refdata.Seeder. Existing airframe hours are never overwritten.
func (d *PostgresDB) SeedAircraft(ctx context.Context, a refdata.Aircraft) (bool, error) {
	tag, err := d.pool.Exec(ctx, `
		INSERT INTO aircraft (registration, model, consumption_rate, total_hours, empty_weight_kg, max_weight_kg)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (registration) DO NOTHING
	`, refdata.NormalizeRegistration(a.Registration), a.Model, a.ConsumptionRate, a.TotalHours.String(), a.EmptyWeightKg, a.MaxWeightKg)
	if err != nil {
		return false, fmt.Errorf("insert aircraft: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResolveAerodrome implements refdata.AerodromeResolver.
func (d *PostgresDB) ResolveAerodrome(ctx context.Context, icao string) (refdata.Aerodrome, error) {
	var a refdata.Aerodrome
	err := d.pool.QueryRow(ctx, `
		SELECT icao, name, coordinates, latitude, longitude, sunset
		FROM aerodromes WHERE icao = $1
	`, refdata.NormalizeICAO(icao)).Scan(&a.ICAO, &a.Name, &a.Coordinates, &a.Latitude, &a.Longitude, &a.Sunset)
	if errors.Is(err, pgx.ErrNoRows) {
		return refdata.Aerodrome{}, apperr.NotFound("refdata.ResolveAerodrome", "aerodrome %q not found", icao)
	}
	if err != nil {
		return refdata.Aerodrome{}, apperr.Unavailable("refdata.ResolveAerodrome", err)
	}
	return a, nil
}

// ListAerodromes returns every aerodrome ordered by code.
func (d *PostgresDB) ListAerodromes(ctx context.Context) ([]refdata.Aerodrome, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT icao, name, coordinates, latitude, longitude, sunset
		FROM aerodromes ORDER BY icao
	`)
	if err != nil {
		return nil, fmt.Errorf("query aerodromes: %w", err)
	}
	defer rows.Close()

	var out []refdata.Aerodrome
	for rows.Next() {
		var a refdata.Aerodrome
		if err := rows.Scan(&a.ICAO, &a.Name, &a.Coordinates, &a.Latitude, &a.Longitude, &a.Sunset); err != nil {
			return nil, fmt.Errorf("scan aerodrome: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveAircraft implements refdata.AircraftResolver.
func (d *PostgresDB) ResolveAircraft(ctx context.Context, registration string) (refdata.Aircraft, error) {
	var a refdata.Aircraft
	err := d.pool.QueryRow(ctx, `
		SELECT registration, model, consumption_rate, total_hours, empty_weight_kg, max_weight_kg
		FROM aircraft WHERE registration = $1
	`, refdata.NormalizeRegistration(registration)).Scan(&a.Registration, &a.Model, &a.ConsumptionRate, &a.TotalHours, &a.EmptyWeightKg, &a.MaxWeightKg)
	if errors.Is(err, pgx.ErrNoRows) {
		return refdata.Aircraft{}, apperr.NotFound("refdata.ResolveAircraft", "aircraft %q not found", registration)
	}
	if err != nil {
		return refdata.Aircraft{}, apperr.Unavailable("refdata.ResolveAircraft", err)
	}
	return a, nil
}

// Pool returns the underlying pgx pool for direct queries.
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}
