package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"flightops/internal/apperr"
	"flightops/internal/flightplan"
	"flightops/internal/logbook"
	"flightops/internal/provision"
)

// FindLogbook implements logbook.Store.
func (d *SQLiteDB) FindLogbook(ctx context.Context, key logbook.Key) (*logbook.Logbook, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+logbookColumns+` FROM logbooks
		WHERE registration = ? AND year = ? AND month = ?`, key.Registration, key.Year, key.Month)
	return sqlLogbook(row)
}

// GetLogbook implements logbook.Store.
func (d *SQLiteDB) GetLogbook(ctx context.Context, id string) (*logbook.Logbook, error) {
	return sqlLogbook(d.db.QueryRowContext(ctx, `SELECT `+logbookColumns+` FROM logbooks WHERE id = ?`, id))
}

func sqlLogbook(row *sql.Row) (*logbook.Logbook, error) {
	lb, err := scanLogbook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan logbook: %w", err)
	}
	return &lb, nil
}

// ListLogbooks implements logbook.Store.
func (d *SQLiteDB) ListLogbooks(ctx context.Context, month, year int) ([]logbook.Logbook, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+logbookColumns+` FROM logbooks
		WHERE year = ? AND month = ? ORDER BY registration`, year, month)
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
func (d *SQLiteDB) CreateLogbook(ctx context.Context, lb logbook.Logbook) (logbook.Logbook, bool, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO logbooks (id, registration, month, year, previous_hours, current_hours, revision_threshold, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (registration, year, month) DO NOTHING
	`, lb.ID, lb.Registration, lb.Month, lb.Year,
		lb.PreviousHours.String(), lb.CurrentHours.String(), lb.RevisionThreshold.String(),
		formatTime(lb.CreatedAt), formatTime(lb.UpdatedAt))
	if err != nil {
		return logbook.Logbook{}, false, fmt.Errorf("insert logbook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
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
func (d *SQLiteDB) GetEntry(ctx context.Context, id string) (*logbook.Entry, error) {
	e, err := scanEntry(d.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM logbook_entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	return &e, nil
}

// ListEntries implements logbook.Store.
func (d *SQLiteDB) ListEntries(ctx context.Context, logbookID string) ([]logbook.Entry, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM logbook_entries
		WHERE logbook_id = ? ORDER BY seq`, logbookID)
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

// withTx runs fn in a transaction, committing only when fn succeeds.
func (d *SQLiteDB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendEntry implements logbook.Store.
func (d *SQLiteDB) AppendEntry(ctx context.Context, m logbook.Mutation, e logbook.Entry) (logbook.Entry, error) {
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if err := sqliteAdvance(ctx, tx, m); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO logbook_entries (id, logbook_id, entry_date, origin, destination,
				engine_start, departure, arrival, engine_shutdown,
				flight_time_total, flight_time_day, flight_time_night, instrument_hours,
				landings, fuel_added, fuel_remaining, cell_hours,
				pic, pic_hours, sic, sic_hours, allowance, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, m.LogbookID, formatDate(e.Date), e.From, e.To,
			e.EngineStart, e.Departure, e.Arrival, e.EngineShutdown,
			e.FlightTimeTotal.String(), e.FlightTimeDay.String(), e.FlightTimeNight.String(), e.InstrumentHours.String(),
			e.Landings, e.FuelAdded, e.FuelRemaining, e.CellHours.String(),
			e.PIC, e.PICHours.String(), e.SIC, e.SICHours.String(), e.Allowance.String(), formatTime(e.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		e.Seq, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return logbook.Entry{}, err
	}
	e.LogbookID = m.LogbookID
	return e, nil
}

// DeleteEntry implements logbook.Store.
func (d *SQLiteDB) DeleteEntry(ctx context.Context, m logbook.Mutation, entryID string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM logbook_entries WHERE id = ? AND logbook_id = ?`, entryID, m.LogbookID)
		if err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return logbook.ErrStaleVersion
		}
		return sqliteAdvance(ctx, tx, m)
	})
}

// sqliteAdvance applies the logbook and airframe side of a mutation inside tx. Airframe hours
// are TEXT, so the sum is done with decimal arithmetic rather than in SQL.
func sqliteAdvance(ctx context.Context, tx *sql.Tx, m logbook.Mutation) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE logbooks SET current_hours = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, m.CurrentHours.String(), formatTime(m.At), m.LogbookID, m.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("update logbook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return logbook.ErrStaleVersion
	}

	if m.Delta.IsZero() {
		return nil
	}
	var total decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT total_hours FROM aircraft WHERE registration = ?`, m.Registration).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read airframe hours: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE aircraft SET total_hours = ? WHERE registration = ?`,
		total.Add(m.Delta).String(), m.Registration); err != nil {
		return fmt.Errorf("update airframe hours: %w", err)
	}
	return nil
}

// CreatePlan implements flightplan.Store.
func (d *SQLiteDB) CreatePlan(ctx context.Context, p flightplan.FlightPlan) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal flight plan: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO flight_plans (id, registration, status, departure_time, plan, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Registration, string(p.Status), formatTime(p.DepartureTime), string(doc), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert flight plan: %w", err)
	}
	return nil
}

// GetPlan implements flightplan.Store.
func (d *SQLiteDB) GetPlan(ctx context.Context, id string) (*flightplan.FlightPlan, error) {
	var doc string
	err := d.db.QueryRowContext(ctx, `SELECT plan FROM flight_plans WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query flight plan: %w", err)
	}
	var p flightplan.FlightPlan
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("unmarshal flight plan: %w", err)
	}
	return &p, nil
}

// UpdatePlan implements flightplan.Store.
func (d *SQLiteDB) UpdatePlan(ctx context.Context, p flightplan.FlightPlan) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal flight plan: %w", err)
	}
	res, err := d.db.ExecContext(ctx, `
		UPDATE flight_plans SET status = ?, departure_time = ?, plan = ?, updated_at = ?
		WHERE id = ?
	`, string(p.Status), formatTime(p.DepartureTime), string(doc), formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update flight plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("flight plan %s does not exist", p.ID)
	}
	return nil
}

// ListPlans implements flightplan.Store.
func (d *SQLiteDB) ListPlans(ctx context.Context, registration string) ([]flightplan.FlightPlan, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT plan FROM flight_plans
		WHERE ? = '' OR registration = ?
		ORDER BY departure_time
	`, registration, registration)
	if err != nil {
		return nil, fmt.Errorf("query flight plans: %w", err)
	}
	defer rows.Close()

	var out []flightplan.FlightPlan
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan flight plan: %w", err)
		}
		var p flightplan.FlightPlan
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("unmarshal flight plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateUser implements provision.Directory.
func (d *SQLiteDB) CreateUser(ctx context.Context, u provision.User) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)`,
		u.ID, u.Email, formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return apperr.Conflict("provision.CreateUser", "email %s is already registered", u.Email)
	}
	return wrap("insert user", err)
}

// DeleteUser implements provision.Directory.
func (d *SQLiteDB) DeleteUser(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return wrap("delete user", err)
}

// CreateProfile implements provision.Directory.
func (d *SQLiteDB) CreateProfile(ctx context.Context, p provision.Profile) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO profiles (id, user_id, full_name, phone) VALUES (?, ?, ?, ?)`,
		p.ID, p.UserID, p.FullName, p.Phone)
	return wrap("insert profile", err)
}

// DeleteProfile implements provision.Directory.
func (d *SQLiteDB) DeleteProfile(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	return wrap("delete profile", err)
}

// CreateCrewMember implements provision.Directory.
func (d *SQLiteDB) CreateCrewMember(ctx context.Context, c provision.CrewMember) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO crew_members (id, user_id, name, role, license) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, string(c.Role), c.License)
	if isUniqueViolation(err) {
		return apperr.Conflict("provision.CreateCrewMember", "license %s is already assigned", c.License)
	}
	return wrap("insert crew member", err)
}
