package storage

import (
	"fmt"
	"strings"
	"time"

	"flightops/internal/logbook"
)

const dateLayout = "2006-01-02"

// scanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// timeValue scans DATE and TIMESTAMPTZ values (PostgreSQL) as well as the text SQLite stores
// them as: RFC 3339 for timestamps, YYYY-MM-DD for dates.
type timeValue struct {
	t *time.Time
}

func scanTime(t *time.Time) *timeValue {
	return &timeValue{t: t}
}

func (tv *timeValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*tv.t = time.Time{}
	case time.Time:
		*tv.t = v.UTC()
	case string:
		return tv.parse(v)
	case []byte:
		return tv.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
	return nil
}

func (tv *timeValue) parse(s string) error {
	if s == "" {
		*tv.t = time.Time{}
		return nil
	}
	layout := time.RFC3339Nano
	if len(s) == len(dateLayout) {
		layout = dateLayout
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	*tv.t = t.UTC()
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// isUniqueViolation recognizes unique-constraint failures from both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pgErrorCode(err); ok {
		return code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const logbookColumns = `id, registration, month, year, previous_hours, current_hours, revision_threshold, version, created_at, updated_at`

func scanLogbook(s scanner) (logbook.Logbook, error) {
	var lb logbook.Logbook
	err := s.Scan(&lb.ID, &lb.Registration, &lb.Month, &lb.Year,
		&lb.PreviousHours, &lb.CurrentHours, &lb.RevisionThreshold, &lb.Version,
		scanTime(&lb.CreatedAt), scanTime(&lb.UpdatedAt))
	return lb, err
}

const entryColumns = `id, logbook_id, seq, entry_date, origin, destination,
	engine_start, departure, arrival, engine_shutdown,
	flight_time_total, flight_time_day, flight_time_night, instrument_hours,
	landings, fuel_added, fuel_remaining, cell_hours,
	pic, pic_hours, sic, sic_hours, allowance, created_at`

func scanEntry(s scanner) (logbook.Entry, error) {
	var e logbook.Entry
	err := s.Scan(&e.ID, &e.LogbookID, &e.Seq, scanTime(&e.Date), &e.From, &e.To,
		&e.EngineStart, &e.Departure, &e.Arrival, &e.EngineShutdown,
		&e.FlightTimeTotal, &e.FlightTimeDay, &e.FlightTimeNight, &e.InstrumentHours,
		&e.Landings, &e.FuelAdded, &e.FuelRemaining, &e.CellHours,
		&e.PIC, &e.PICHours, &e.SIC, &e.SICHours, &e.Allowance, scanTime(&e.CreatedAt))
	return e, err
}
