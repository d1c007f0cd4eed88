// Package logbook maintains per-aircraft monthly logbooks: the running airframe-hour ledger,
// the entries appended to it and the crew-hour and allowance summaries derived from them.
package logbook

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RevisionInterval is the number of airframe hours between scheduled revisions.
var RevisionInterval = decimal.NewFromInt(100)

// Key identifies a logbook: one per aircraft per calendar month.
type Key struct {
	Registration string
	Month        int
	Year         int
}

// Prev returns the key of the immediately preceding period.
func (k Key) Prev() Key {
	if k.Month == 1 {
		return Key{Registration: k.Registration, Month: 12, Year: k.Year - 1}
	}
	return Key{Registration: k.Registration, Month: k.Month - 1, Year: k.Year}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%04d-%02d", k.Registration, k.Year, k.Month)
}

// Logbook holds the cumulative hour state of one aircraft for one period.
//
// Invariant: CurrentHours == PreviousHours + sum of FlightTimeTotal over the logbook's entries.
type Logbook struct {
	ID                string          `json:"id"`
	Registration      string          `json:"registration"`
	Month             int             `json:"month"`
	Year              int             `json:"year"`
	PreviousHours     decimal.Decimal `json:"previous_hours"`
	CurrentHours      decimal.Decimal `json:"current_hours"`
	RevisionThreshold decimal.Decimal `json:"revision_threshold"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Key returns the logbook's identity.
func (l Logbook) Key() Key {
	return Key{Registration: l.Registration, Month: l.Month, Year: l.Year}
}

// Entry is one flight recorded in a logbook.
type Entry struct {
	ID        string `json:"id"`
	LogbookID string `json:"logbook_id"`
	Seq       int64  `json:"seq"`

	Date           time.Time `json:"date"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	EngineStart    string    `json:"engine_start,omitempty"`
	Departure      string    `json:"departure,omitempty"`
	Arrival        string    `json:"arrival,omitempty"`
	EngineShutdown string    `json:"engine_shutdown,omitempty"`

	FlightTimeTotal decimal.Decimal `json:"flight_time_total"`
	FlightTimeDay   decimal.Decimal `json:"flight_time_day"`
	FlightTimeNight decimal.Decimal `json:"flight_time_night"`
	InstrumentHours decimal.Decimal `json:"instrument_hours"`
	Landings        int             `json:"landings"`
	FuelAdded       float64         `json:"fuel_added"`
	FuelRemaining   float64         `json:"fuel_remaining"`

	// CellHours is the airframe total after this entry. Read models derive it from the
	// logbook's previous hours and the entries before it.
	CellHours decimal.Decimal `json:"cell_hours"`

	PIC      string          `json:"pic"`
	PICHours decimal.Decimal `json:"pic_hours"`
	SIC      string          `json:"sic,omitempty"`
	SICHours decimal.Decimal `json:"sic_hours"`

	Allowance decimal.Decimal `json:"allowance"`
	CreatedAt time.Time       `json:"created_at"`
}

// EntryInput carries the caller-supplied fields of a new entry.
//
// When FlightTimeTotal is zero, total, day and night time are computed from Departure and
// Arrival with the day/night splitter.
type EntryInput struct {
	Date           time.Time `json:"date"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	EngineStart    string    `json:"engine_start"`
	Departure      string    `json:"departure"`
	Arrival        string    `json:"arrival"`
	EngineShutdown string    `json:"engine_shutdown"`

	FlightTimeTotal decimal.Decimal `json:"flight_time_total"`
	FlightTimeDay   decimal.Decimal `json:"flight_time_day"`
	FlightTimeNight decimal.Decimal `json:"flight_time_night"`
	InstrumentHours decimal.Decimal `json:"instrument_hours"`
	Landings        int             `json:"landings"`
	FuelAdded       float64         `json:"fuel_added"`
	FuelRemaining   float64         `json:"fuel_remaining"`

	PIC      string          `json:"pic"`
	PICHours decimal.Decimal `json:"pic_hours"`
	SIC      string          `json:"sic"`
	SICHours decimal.Decimal `json:"sic_hours"`
}

// CrewHours aggregates one crew member's hours.
type CrewHours struct {
	Name       string          `json:"name"`
	PICHours   decimal.Decimal `json:"pic_hours"`
	SICHours   decimal.Decimal `json:"sic_hours"`
	TotalHours decimal.Decimal `json:"total_hours"`
	Aircraft   []string        `json:"aircraft,omitempty"`
}

// MonthlySummary is derived from a logbook's entries on every read.
type MonthlySummary struct {
	AllowanceTotal decimal.Decimal `json:"allowance_total"`
	Crew           []CrewHours     `json:"crew"`
}

// View is a logbook together with its entries and summary.
type View struct {
	Logbook     Logbook        `json:"logbook"`
	Entries     []Entry        `json:"entries"`
	Summary     MonthlySummary `json:"summary"`
	RevisionDue bool           `json:"revision_due"`
}

// CrewReport aggregates crew hours over every aircraft for a period.
type CrewReport struct {
	Month          int             `json:"month"`
	Year           int             `json:"year"`
	Crew           []CrewHours     `json:"crew"`
	AllowanceTotal decimal.Decimal `json:"allowance_total"`
	Logbooks       int             `json:"logbooks"`
}
