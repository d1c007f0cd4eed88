package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"flightops/internal/apperr"
	"flightops/internal/flightplan"
	"flightops/internal/logbook"
	"flightops/internal/provision"
)

// FindLogbook implements logbook.Store.
func (d *PostgresDB) FindLogbook(ctx context.Context, key logbook.Key) (*logbook.Logbook, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+logbookColumns+` FROM logbooks
		WHERE registration = $1 AND year = $2 AND month = $3`, key.Registration, key.Year, key.Month)
	return pgLogbook(row)
}

// GetLogbook implements logbook.Store.
func (d *PostgresDB) GetLogbook(ctx context.Context, id string) (*logbook.Logbook, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+logbookColumns+` FROM logbooks WHERE id = $1`, id)
	return pgLogbook(row)
}

func pgLogbook(row pgx.Row) (*logbook.Logbook, error) {
	lb, err := scanLogbook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan logbook: %w", err)
	}
	return &lb, nil
}

// ListLogbooks implements logbook.Store.
func (d *PostgresDB) ListLogbooks(ctx context.Context, month, year int) ([]logbook.Logbook, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+logbookColumns+` FROM logbooks
		WHERE year = $1 AND month = $2 ORDER BY registration`, year, month)
	if err != nil {
		return nil, fmt.Errorf("query logbooks: %w", err)
	}
	defer rows.Close()

	var out []logbook.Logbook
	for rows.Next() {
		lb, err := scanLogbook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan logbook: %w", err)
		}
		out = append(out, lb)
	}
	return out, rows.Err()
}

// CreateLogbook implements logbook.Store.
func (d *PostgresDB) CreateLogbook(ctx context.Context, lb logbook.Logbook) (logbook.Logbook, bool, error) {
	tag, err := d.pool.Exec(ctx, `
		INSERT INTO logbooks (id, registration, month, year, previous_hours, current_hours, revision_threshold, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
		ON CONFLICT (registration, year, month) DO NOTHING
	`, lb.ID, lb.Registration, lb.Month, lb.Year,
		lb.PreviousHours.String(), lb.CurrentHours.String(), lb.RevisionThreshold.String(),
		lb.CreatedAt, lb.UpdatedAt)
	if err != nil {
		return logbook.Logbook{}, false, fmt.Errorf("insert logbook: %w", err)
	}
	if tag.RowsAffected() == 1 {
		lb.Version = 0
		return lb, true, nil
	}

	existing, err := d.FindLogbook(ctx, lb.Key())
	if err != nil {
		return logbook.Logbook{}, false, err
	}
	if existing == nil {
		return logbook.Logbook{}, false, fmt.Errorf("logbook %s vanished after insert conflict", lb.Key())
	}
	return *existing, false, nil
}

// GetEntry implements logbook.Store.
func (d *PostgresDB) GetEntry(ctx context.Context, id string) (*logbook.Entry, error) {
	e, err := scanEntry(d.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM logbook_entries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	return &e, nil
}

// ListEntries implements logbook.Store.
func (d *PostgresDB) ListEntries(ctx context.Context, logbookID string) ([]logbook.Entry, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+entryColumns+` FROM logbook_entries
		WHERE logbook_id = $1 ORDER BY seq`, logbookID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []logbook.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendEntry implements logbook.Store.
func (d *PostgresDB) AppendEntry(ctx context.Context, m logbook.Mutation, e logbook.Entry) (logbook.Entry, error) {
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		if err := pgAdvance(ctx, tx, m); err != nil {
			return err
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO logbook_entries (id, logbook_id, entry_date, origin, destination,
				engine_start, departure, arrival, engine_shutdown,
				flight_time_total, flight_time_day, flight_time_night, instrument_hours,
				landings, fuel_added, fuel_remaining, cell_hours,
				pic, pic_hours, sic, sic_hours, allowance, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
			RETURNING seq
		`, e.ID, m.LogbookID, e.Date, e.From, e.To,
			e.EngineStart, e.Departure, e.Arrival, e.EngineShutdown,
			e.FlightTimeTotal.String(), e.FlightTimeDay.String(), e.FlightTimeNight.String(), e.InstrumentHours.String(),
			e.Landings, e.FuelAdded, e.FuelRemaining, e.CellHours.String(),
			e.PIC, e.PICHours.String(), e.SIC, e.SICHours.String(), e.Allowance.String(), e.CreatedAt,
		).Scan(&e.Seq)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return logbook.Entry{}, err
	}
	e.LogbookID = m.LogbookID
	return e, nil
}

// DeleteEntry implements logbook.Store.
func (d *PostgresDB) DeleteEntry(ctx context.Context, m logbook.Mutation, entryID string) error {
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM logbook_entries WHERE id = $1 AND logbook_id = $2`, entryID, m.LogbookID)
		if err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return logbook.ErrStaleVersion
		}
		return pgAdvance(ctx, tx, m)
	})
}

// pgAdvance applies the logbook and airframe side of a mutation inside tx.
func pgAdvance(ctx context.Context, tx pgx.Tx, m logbook.Mutation) error {
	tag, err := tx.Exec(ctx, `
		UPDATE logbooks SET current_hours = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
	`, m.CurrentHours.String(), m.At, m.LogbookID, m.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("update logbook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return logbook.ErrStaleVersion
	}

	if m.Delta.IsZero() {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE aircraft SET total_hours = total_hours + $1::numeric WHERE registration = $2
	`, m.Delta.String(), m.Registration); err != nil {
		return fmt.Errorf("update airframe hours: %w", err)
	}
	return nil
}

// CreatePlan implements flightplan.Store.
func (d *PostgresDB) CreatePlan(ctx context.Context, p flightplan.FlightPlan) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal flight plan: %w", err)
	}
	_, err = d.pool.Exec(ctx, `
		INSERT INTO flight_plans (id, registration, status, departure_time, plan, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Registration, string(p.Status), p.DepartureTime, doc, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert flight plan: %w", err)
	}
	return nil
}

// GetPlan implements flightplan.Store.
func (d *PostgresDB) GetPlan(ctx context.Context, id string) (*flightplan.FlightPlan, error) {
	var doc []byte
	err := d.pool.QueryRow(ctx, `SELECT plan FROM flight_plans WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query flight plan: %w", err)
	}
	var p flightplan.FlightPlan
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("unmarshal flight plan: %w", err)
	}
	return &p, nil
}

// UpdatePlan implements flightplan.Store.
func (d *PostgresDB) UpdatePlan(ctx context.Context, p flightplan.FlightPlan) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal flight plan: %w", err)
	}
	tag, err := d.pool.Exec(ctx, `
		UPDATE flight_plans SET status = $2, departure_time = $3, plan = $4, updated_at = $5
		WHERE id = $1
	`, p.ID, string(p.Status), p.DepartureTime, doc, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update flight plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("flight plan %s does not exist", p.ID)
	}
	return nil
}

// ListPlans implements flightplan.Store.
func (d *PostgresDB) ListPlans(ctx context.Context, registration string) ([]flightplan.FlightPlan, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT plan FROM flight_plans
		WHERE $1 = '' OR registration = $1
		ORDER BY departure_time
	`, registration)
	if err != nil {
		return nil, fmt.Errorf("query flight plans: %w", err)
	}
	defer rows.Close()

	var out []flightplan.FlightPlan
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan flight plan: %w", err)
		}
		var p flightplan.FlightPlan
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("unmarshal flight plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateUser implements provision.Directory.
func (d *PostgresDB) CreateUser(ctx context.Context, u provision.User) error {
	_, err := d.pool.Exec(ctx, `INSERT INTO users (id, email, created_at) VALUES ($1, $2, $3)`, u.ID, u.Email, u.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("provision.CreateUser", "email %s is already registered", u.Email)
	}
	return wrap("insert user", err)
}

// DeleteUser implements provision.Directory.
func (d *PostgresDB) DeleteUser(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return wrap("delete user", err)
}

// CreateProfile implements provision.Directory.
func (d *PostgresDB) CreateProfile(ctx context.Context, p provision.Profile) error {
	_, err := d.pool.Exec(ctx, `INSERT INTO profiles (id, user_id, full_name, phone) VALUES ($1, $2, $3, $4)`,
		p.ID, p.UserID, p.FullName, p.Phone)
	return wrap("insert profile", err)
}

// DeleteProfile implements provision.Directory.
func (d *PostgresDB) DeleteProfile(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	return wrap("delete profile", err)
}

// CreateCrewMember implements provision.Directory.
func (d *PostgresDB) CreateCrewMember(ctx context.Context, c provision.CrewMember) error {
	_, err := d.pool.Exec(ctx, `INSERT INTO crew_members (id, user_id, name, role, license) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.Name, string(c.Role), c.License)
	if isUniqueViolation(err) {
		return apperr.Conflict("provision.CreateCrewMember", "license %s is already assigned", c.License)
	}
	return wrap("insert crew member", err)
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}
