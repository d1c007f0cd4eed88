package logbook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"flightops/internal/apperr"
	"flightops/internal/daynight"
	"flightops/internal/refdata"
)

// DefaultMaxAttempts bounds how often a mutation is retried after losing a version race.
const DefaultMaxAttempts = 3

// Ledger owns the logbook state machine (absent -> created -> populated) and serializes every
// mutation of a logbook's running total.
//
// Mutations of one logbook are serialized in-process with a per-logbook mutex and across
// processes with the store's version check. Different logbooks proceed in parallel.
type Ledger struct {
	store       Store
	aircraft    refdata.AircraftResolver
	splitter    *daynight.Splitter
	rules       AllowanceRules
	publisher   Publisher
	logger      *logrus.Logger
	locks       *keyedMutex
	maxAttempts int
	now         func() time.Time
}

// NewLedger creates a ledger.
func NewLedger(store Store, aircraft refdata.AircraftResolver, splitter *daynight.Splitter, rules AllowanceRules, logger *logrus.Logger) *Ledger {
	if logger == nil {
		logger = logrus.New()
	}
	if splitter == nil {
		splitter = daynight.NewSplitter(nil)
	}
	return &Ledger{
		store:       store,
		aircraft:    aircraft,
		splitter:    splitter,
		rules:       rules,
		logger:      logger,
		locks:       newKeyedMutex(),
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher sets the receiver of committed ledger events.
func (l *Ledger) SetPublisher(p Publisher) {
	l.publisher = p
}

// Open returns the logbook for (registration, month, year), creating it on first access.
//
// A new logbook's previous hours are seeded from the preceding period's current hours, else
// from the aircraft's airframe total.
func (l *Ledger) Open(ctx context.Context, registration string, month, year int) (Logbook, error) {
	const op = "logbook.Open"

	key := Key{Registration: refdata.NormalizeRegistration(registration), Month: month, Year: year}
	if err := validateKey(op, key); err != nil {
		return Logbook{}, err
	}

	if lb, err := l.store.FindLogbook(ctx, key); err != nil {
		return Logbook{}, apperr.Internal(op, err)
	} else if lb != nil {
		return *lb, nil
	}

	unlock := l.locks.Lock("key:" + key.String())
	lb, created, err := l.createLocked(ctx, op, key)
	unlock()
	if err != nil {
		return Logbook{}, err
	}

	if created {
		l.publish(ctx, Event{
			Type:         EventLogbookCreated,
			LogbookID:    lb.ID,
			Registration: lb.Registration,
			Month:        lb.Month,
			Year:         lb.Year,
			CurrentHours: lb.CurrentHours,
			At:           lb.CreatedAt,
		})
	}
	return lb, nil
}

func (l *Ledger) createLocked(ctx context.Context, op string, key Key) (Logbook, bool, error) {
	// Re-check under the lock; another caller may have created it meanwhile.
	if lb, err := l.store.FindLogbook(ctx, key); err != nil {
		return Logbook{}, false, apperr.Internal(op, err)
	} else if lb != nil {
		return *lb, false, nil
	}

	previous, err := l.seedHours(ctx, key)
	if err != nil {
		return Logbook{}, false, err
	}

	now := l.now()
	lb, created, err := l.store.CreateLogbook(ctx, Logbook{
		ID:                uuid.NewString(),
		Registration:      key.Registration,
		Month:             key.Month,
		Year:              key.Year,
		PreviousHours:     previous,
		CurrentHours:      previous,
		RevisionThreshold: previous.Add(RevisionInterval),
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return Logbook{}, false, apperr.Internal(op, err)
	}

	if created {
		l.logger.WithFields(logrus.Fields{
			"logbook":        lb.ID,
			"period":         key.String(),
			"previous_hours": lb.PreviousHours.String(),
		}).Info("Logbook created")
	}
	return lb, created, nil
}

func (l *Ledger) seedHours(ctx context.Context, key Key) (decimal.Decimal, error) {
	const op = "logbook.Open"

	prev, err := l.store.FindLogbook(ctx, key.Prev())
	if err != nil {
		return decimal.Zero, apperr.Internal(op, err)
	}
	if prev != nil {
		return prev.CurrentHours, nil
	}

	ac, err := l.aircraft.ResolveAircraft(ctx, key.Registration)
	if err != nil {
		return decimal.Zero, err
	}
	return ac.TotalHours, nil
}

// Get returns the logbook for a period with its entries and monthly summary, creating the
// logbook on first access.
func (l *Ledger) Get(ctx context.Context, registration string, month, year int) (View, error) {
	lb, err := l.Open(ctx, registration, month, year)
	if err != nil {
		return View{}, err
	}
	return l.view(ctx, lb)
}

// View returns an existing logbook by id.
func (l *Ledger) View(ctx context.Context, logbookID string) (View, error) {
	const op = "logbook.View"

	lb, err := l.store.GetLogbook(ctx, logbookID)
	if err != nil {
		return View{}, apperr.Internal(op, err)
	}
	if lb == nil {
		return View{}, apperr.NotFound(op, "logbook %q not found", logbookID)
	}
	return l.view(ctx, *lb)
}

func (l *Ledger) view(ctx context.Context, lb Logbook) (View, error) {
	entries, err := l.store.ListEntries(ctx, lb.ID)
	if err != nil {
		return View{}, apperr.Internal("logbook.View", err)
	}

	if total := deriveCellHours(lb.PreviousHours, entries); !total.Equal(lb.CurrentHours) {
		l.logger.WithFields(logrus.Fields{
			"logbook":       lb.ID,
			"current_hours": lb.CurrentHours.String(),
			"entries_total": total.String(),
		}).Warn("Logbook running total disagrees with its entries")
	}
	if entries == nil {
		entries = []Entry{}
	}

	return View{
		Logbook:     lb,
		Entries:     entries,
		Summary:     Summarize(entries),
		RevisionDue: lb.CurrentHours.GreaterThanOrEqual(lb.RevisionThreshold),
	}, nil
}

// Append records a flight in the logbook and advances its running total.
func (l *Ledger) Append(ctx context.Context, logbookID string, in EntryInput) (Entry, error) {
	const op = "logbook.Append"

	entry, err := l.buildEntry(op, in)
	if err != nil {
		return Entry{}, err
	}

	unlock := l.locks.Lock("id:" + logbookID)
	stored, ev, err := l.appendLocked(ctx, op, logbookID, entry)
	unlock()
	if err != nil {
		return Entry{}, err
	}

	l.publish(ctx, ev)
	return stored, nil
}

// appendLocked runs the append with the logbook's lock held and returns the event to publish
// once it is released.
func (l *Ledger) appendLocked(ctx context.Context, op, logbookID string, entry Entry) (Entry, Event, error) {
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		lb, err := l.store.GetLogbook(ctx, logbookID)
		if err != nil {
			return Entry{}, Event{}, apperr.Internal(op, err)
		}
		if lb == nil {
			return Entry{}, Event{}, apperr.NotFound(op, "logbook %q not found", logbookID)
		}

		entry.LogbookID = lb.ID
		entry.Allowance = l.rules.Allowance(lb.Registration, entry.To)
		entry.CellHours = lb.CurrentHours.Add(entry.FlightTimeTotal)
		entry.CreatedAt = l.now()

		m := Mutation{
			LogbookID:       lb.ID,
			Registration:    lb.Registration,
			ExpectedVersion: lb.Version,
			CurrentHours:    entry.CellHours,
			Delta:           entry.FlightTimeTotal,
			At:              entry.CreatedAt,
		}

		stored, err := l.store.AppendEntry(ctx, m, entry)
		if errors.Is(err, ErrStaleVersion) {
			l.logger.WithFields(logrus.Fields{"logbook": lb.ID, "attempt": attempt}).Debug("Append lost version race, retrying")
			continue
		}
		if err != nil {
			return Entry{}, Event{}, apperr.Internal(op, err)
		}

		l.logger.WithFields(logrus.Fields{
			"logbook":    lb.ID,
			"entry":      stored.ID,
			"flight":     stored.FlightTimeTotal.String(),
			"cell_hours": stored.CellHours.String(),
		}).Debug("Logbook entry appended")
		return stored, Event{
			Type:         EventEntryAppended,
			LogbookID:    lb.ID,
			EntryID:      stored.ID,
			Registration: lb.Registration,
			Month:        lb.Month,
			Year:         lb.Year,
			Delta:        stored.FlightTimeTotal,
			CurrentHours: m.CurrentHours,
			Allowance:    stored.Allowance,
			At:           m.At,
		}, nil
	}

	return Entry{}, Event{}, apperr.Conflict(op, "logbook %q is being modified concurrently, retry", logbookID)
}

// Delete removes an entry and reverses its effect on the logbook's running total.
//
// Deleting an entry that is not the latest leaves the running total correct; cell hours of
// later entries are derived at read time so they never go stale.
func (l *Ledger) Delete(ctx context.Context, entryID string) error {
	const op = "logbook.Delete"

	e, err := l.store.GetEntry(ctx, entryID)
	if err != nil {
		return apperr.Internal(op, err)
	}
	if e == nil {
		return apperr.NotFound(op, "logbook entry %q not found", entryID)
	}

	unlock := l.locks.Lock("id:" + e.LogbookID)
	ev, err := l.deleteLocked(ctx, op, entryID)
	unlock()
	if err != nil {
		return err
	}

	l.publish(ctx, ev)
	return nil
}

// deleteLocked runs the delete with the logbook's lock held and returns the event to publish
// once it is released.
func (l *Ledger) deleteLocked(ctx context.Context, op, entryID string) (Event, error) {
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		// Re-read under the lock: a concurrent delete may have removed it.
		e, err := l.store.GetEntry(ctx, entryID)
		if err != nil {
			return Event{}, apperr.Internal(op, err)
		}
		if e == nil {
			return Event{}, apperr.NotFound(op, "logbook entry %q not found", entryID)
		}
		lb, err := l.store.GetLogbook(ctx, e.LogbookID)
		if err != nil {
			return Event{}, apperr.Internal(op, err)
		}
		if lb == nil {
			return Event{}, apperr.NotFound(op, "logbook %q not found", e.LogbookID)
		}

		m := Mutation{
			LogbookID:       lb.ID,
			Registration:    lb.Registration,
			ExpectedVersion: lb.Version,
			CurrentHours:    lb.CurrentHours.Sub(e.FlightTimeTotal),
			Delta:           e.FlightTimeTotal.Neg(),
			At:              l.now(),
		}

		err = l.store.DeleteEntry(ctx, m, entryID)
		if errors.Is(err, ErrStaleVersion) {
			l.logger.WithFields(logrus.Fields{"entry": entryID, "attempt": attempt}).Debug("Delete lost version race, retrying")
			continue
		}
		if err != nil {
			return Event{}, apperr.Internal(op, err)
		}

		l.logger.WithFields(logrus.Fields{
			"logbook":       lb.ID,
			"entry":         entryID,
			"current_hours": m.CurrentHours.String(),
		}).Info("Logbook entry deleted")
		return Event{
			Type:         EventEntryDeleted,
			LogbookID:    lb.ID,
			EntryID:      entryID,
			Registration: lb.Registration,
			Month:        lb.Month,
			Year:         lb.Year,
			Delta:        m.Delta,
			CurrentHours: m.CurrentHours,
			Allowance:    e.Allowance.Neg(),
			At:           m.At,
		}, nil
	}

	return Event{}, apperr.Conflict(op, "logbook entry %q is being modified concurrently, retry", entryID)
}

// CrewReport aggregates crew hours over every logbook of a period.
func (l *Ledger) CrewReport(ctx context.Context, month, year int) (CrewReport, error) {
	const op = "logbook.CrewReport"

	if err := validateKey(op, Key{Registration: "-", Month: month, Year: year}); err != nil {
		return CrewReport{}, err
	}

	logbooks, err := l.store.ListLogbooks(ctx, month, year)
	if err != nil {
		return CrewReport{}, apperr.Internal(op, err)
	}

	tally := newCrewTally()
	allowance := decimal.Zero
	for _, lb := range logbooks {
		entries, err := l.store.ListEntries(ctx, lb.ID)
		if err != nil {
			return CrewReport{}, apperr.Internal(op, err)
		}
		for _, e := range entries {
			tally.add(e, lb.Registration)
			allowance = allowance.Add(e.Allowance)
		}
	}

	return CrewReport{
		Month:          month,
		Year:           year,
		Crew:           tally.sorted(),
		AllowanceTotal: allowance,
		Logbooks:       len(logbooks),
	}, nil
}

// buildEntry validates the input and fills computed flight times.
func (l *Ledger) buildEntry(op string, in EntryInput) (Entry, error) {
	from := refdata.NormalizeICAO(in.From)
	to := refdata.NormalizeICAO(in.To)
	if from == "" || to == "" {
		return Entry{}, apperr.Invalid(op, "from and to aerodromes are required")
	}
	if in.Date.IsZero() {
		return Entry{}, apperr.Invalid(op, "date is required")
	}
	if in.Landings < 0 {
		return Entry{}, apperr.Invalid(op, "landings must not be negative")
	}
	for name, v := range map[string]decimal.Decimal{
		"flight_time_total": in.FlightTimeTotal,
		"flight_time_day":   in.FlightTimeDay,
		"flight_time_night": in.FlightTimeNight,
		"instrument_hours":  in.InstrumentHours,
		"pic_hours":         in.PICHours,
		"sic_hours":         in.SICHours,
	} {
		if v.IsNegative() {
			return Entry{}, apperr.Invalid(op, "%s must not be negative", name)
		}
	}

	total, day, night := in.FlightTimeTotal, in.FlightTimeDay, in.FlightTimeNight
	split := l.splitter.Split(in.Departure, in.Arrival, from, to)
	switch {
	case total.IsZero():
		total, day, night = split.TotalHours, split.DayHours, split.NightHours
	case !day.IsZero() || !night.IsZero():
		if !day.Add(night).Equal(total) {
			return Entry{}, apperr.Invalid(op, "day (%s) and night (%s) time must add up to total (%s)", day, night, total)
		}
	case split.TotalMinutes > 0:
		// The logged total wins; the clock times decide how much of it was flown at night.
		night = decimal.Min(split.NightHours, total)
		day = total.Sub(night)
	default:
		day = total
	}
	if !total.IsPositive() {
		return Entry{}, apperr.Invalid(op, "flight time could not be determined from %q-%q", in.Departure, in.Arrival)
	}

	pic := strings.TrimSpace(in.PIC)
	sic := strings.TrimSpace(in.SIC)
	if pic == "" {
		return Entry{}, apperr.Invalid(op, "pilot in command is required")
	}
	picHours := in.PICHours
	if picHours.IsZero() {
		picHours = total
	}
	sicHours := in.SICHours
	if sic != "" && sicHours.IsZero() {
		sicHours = total
	}
	if sic == "" {
		sicHours = decimal.Zero
	}

	return Entry{
		ID:              uuid.NewString(),
		Date:            in.Date,
		From:            from,
		To:              to,
		EngineStart:     in.EngineStart,
		Departure:       in.Departure,
		Arrival:         in.Arrival,
		EngineShutdown:  in.EngineShutdown,
		FlightTimeTotal: total,
		FlightTimeDay:   day,
		FlightTimeNight: night,
		InstrumentHours: in.InstrumentHours,
		Landings:        in.Landings,
		FuelAdded:       in.FuelAdded,
		FuelRemaining:   in.FuelRemaining,
		PIC:             pic,
		PICHours:        picHours,
		SIC:             sic,
		SICHours:        sicHours,
	}, nil
}

func (l *Ledger) publish(ctx context.Context, ev Event) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, ev); err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"event":   ev.Type,
			"logbook": ev.LogbookID,
		}).Warn("Failed to publish ledger event")
	}
}

func validateKey(op string, k Key) error {
	if k.Registration == "" {
		return apperr.Invalid(op, "aircraft registration is required")
	}
	if k.Month < 1 || k.Month > 12 {
		return apperr.Invalid(op, "month %d out of range", k.Month)
	}
	if k.Year < 1900 || k.Year > 9999 {
		return apperr.Invalid(op, "year %d out of range", k.Year)
	}
	return nil
}

// String implements fmt.Stringer for log output.
func (e Entry) String() string {
	return fmt.Sprintf("%s %s-%s %sh", e.Date.Format("2006-01-02"), e.From, e.To, e.FlightTimeTotal)
}
