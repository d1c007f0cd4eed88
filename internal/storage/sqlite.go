// Package storage provides the SQL backends of the engine (PostgreSQL and SQLite) and the
// ClickHouse ledger analytics sink.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"flightops/internal/apperr"
	"flightops/internal/refdata"
)

// SQLiteDB is the single-node backend. Decimal columns are stored as TEXT so hours and money
// round-trip exactly.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path and creates its schema.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; transactions would otherwise fail with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	d := &SQLiteDB{db: db}
	if err := d.CreateSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return d, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

// CreateSchema creates the tables and runs migrations for existing databases.
func (d *SQLiteDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS aerodromes (
		icao TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		coordinates TEXT NOT NULL DEFAULT '',
		latitude REAL NOT NULL DEFAULT 0,
		longitude REAL NOT NULL DEFAULT 0,
		sunset TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS aircraft (
		registration TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		consumption_rate REAL NOT NULL DEFAULT 0,
		total_hours TEXT NOT NULL DEFAULT '0',
		empty_weight_kg REAL NOT NULL DEFAULT 0,
		max_weight_kg REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS logbooks (
		id TEXT PRIMARY KEY,
		registration TEXT NOT NULL REFERENCES aircraft(registration),
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		previous_hours TEXT NOT NULL,
		current_hours TEXT NOT NULL,
		revision_threshold TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(registration, year, month)
	);

	CREATE INDEX IF NOT EXISTS idx_logbooks_period ON logbooks(year, month);

	CREATE TABLE IF NOT EXISTS logbook_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		logbook_id TEXT NOT NULL REFERENCES logbooks(id),
		entry_date TEXT NOT NULL,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		engine_start TEXT NOT NULL DEFAULT '',
		departure TEXT NOT NULL DEFAULT '',
		arrival TEXT NOT NULL DEFAULT '',
		engine_shutdown TEXT NOT NULL DEFAULT '',
		flight_time_total TEXT NOT NULL,
		flight_time_day TEXT NOT NULL DEFAULT '0',
		flight_time_night TEXT NOT NULL DEFAULT '0',
		instrument_hours TEXT NOT NULL DEFAULT '0',
		landings INTEGER NOT NULL DEFAULT 0,
		fuel_added REAL NOT NULL DEFAULT 0,
		fuel_remaining REAL NOT NULL DEFAULT 0,
		cell_hours TEXT NOT NULL,
		pic TEXT NOT NULL,
		pic_hours TEXT NOT NULL DEFAULT '0',
		sic TEXT NOT NULL DEFAULT '',
		sic_hours TEXT NOT NULL DEFAULT '0',
		allowance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_logbook_entries_logbook ON logbook_entries(logbook_id, seq);

	CREATE TABLE IF NOT EXISTS flight_plans (
		id TEXT PRIMARY KEY,
		registration TEXT NOT NULL,
		status TEXT NOT NULL,
		departure_time TEXT NOT NULL,
		plan TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_flight_plans_registration ON flight_plans(registration, departure_time);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		full_name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS crew_members (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		license TEXT NOT NULL UNIQUE
	);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return d.migrateSchema(ctx)
}

// migrateSchema adds columns introduced after the first release to existing databases.
func (d *SQLiteDB) migrateSchema(ctx context.Context) error {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info('aircraft') WHERE name='max_weight_kg'`).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if _, err := d.db.ExecContext(ctx, `ALTER TABLE aircraft ADD COLUMN max_weight_kg REAL NOT NULL DEFAULT 0`); err != nil {
		// Ignore "duplicate column" errors for idempotency.
		if !strings.Contains(err.Error(), "duplicate column") {
			return err
		}
	}
	return nil
}

// SeedAerodrome implements refdata.Seeder.
func (d *SQLiteDB) SeedAerodrome(ctx context.Context, a refdata.Aerodrome) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO aerodromes (icao, name, coordinates, latitude, longitude, sunset)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (icao) DO NOTHING
	`, refdata.NormalizeICAO(a.ICAO), a.Name, a.Coordinates, a.Latitude, a.Longitude, a.Sunset)
	if err != nil {
		return false, fmt.Errorf("insert aerodrome: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SeedAircraft implements refdata.Seeder. Existing airframe hours are never overwritten.
func (d *SQLiteDB) SeedAircraft(ctx context.Context, a refdata.Aircraft) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO aircraft (registration, model, consumption_rate, total_hours, empty_weight_kg, max_weight_kg)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (registration) DO NOTHING
	`, refdata.NormalizeRegistration(a.Registration), a.Model, a.ConsumptionRate, a.TotalHours.String(), a.EmptyWeightKg, a.MaxWeightKg)
	if err != nil {
		return false, fmt.Errorf("insert aircraft: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ResolveAerodrome implements refdata.AerodromeResolver.
func (d *SQLiteDB) ResolveAerodrome(ctx context.Context, icao string) (refdata.Aerodrome, error) {
	var a refdata.Aerodrome
	err := d.db.QueryRowContext(ctx, `
		SELECT icao, name, coordinates, latitude, longitude, sunset
		FROM aerodromes WHERE icao = ?
	`, refdata.NormalizeICAO(icao)).Scan(&a.ICAO, &a.Name, &a.Coordinates, &a.Latitude, &a.Longitude, &a.Sunset)
	if errors.Is(err, sql.ErrNoRows) {
		return refdata.Aerodrome{}, apperr.NotFound("refdata.ResolveAerodrome", "aerodrome %q not found", icao)
	}
	if err != nil {
		return refdata.Aerodrome{}, apperr.Unavailable("refdata.ResolveAerodrome", err)
	}
	return a, nil
}

// ListAerodromes returns every aerodrome ordered by code.
func (d *SQLiteDB) ListAerodromes(ctx context.Context) ([]refdata.Aerodrome, error) {
	rows, err := d.db.QueryContext(ctx, `
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
func (d *SQLiteDB) ResolveAircraft(ctx context.Context, registration string) (refdata.Aircraft, error) {
	var a refdata.Aircraft
	err := d.db.QueryRowContext(ctx, `
		SELECT registration, model, consumption_rate, total_hours, empty_weight_kg, max_weight_kg
		FROM aircraft WHERE registration = ?
	`, refdata.NormalizeRegistration(registration)).Scan(&a.Registration, &a.Model, &a.ConsumptionRate, &a.TotalHours, &a.EmptyWeightKg, &a.MaxWeightKg)
	if errors.Is(err, sql.ErrNoRows) {
		return refdata.Aircraft{}, apperr.NotFound("refdata.ResolveAircraft", "aircraft %q not found", registration)
	}
	if err != nil {
		return refdata.Aircraft{}, apperr.Unavailable("refdata.ResolveAircraft", err)
	}
	return a, nil
}
