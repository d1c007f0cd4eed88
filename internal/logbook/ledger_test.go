package logbook

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightops/internal/apperr"
	"flightops/internal/daynight"
	"flightops/internal/refdata"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	ledger  *Ledger
	store   *MemoryStore
	catalog *refdata.Catalog
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	catalog := refdata.NewDefaultCatalog()
	store := NewMemoryStore(catalog)
	ledger := NewLedger(store, catalog, daynight.NewSplitter(catalog), DefaultAllowanceRules(), quietLogger())
	ledger.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	return fixture{ledger: ledger, store: store, catalog: catalog}
}

func flight(total string, pic string) EntryInput {
	return EntryInput{
		Date:            time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		From:            "MMMX",
		To:              "MMTO",
		FlightTimeTotal: dec(total),
		Landings:        1,
		PIC:             pic,
	}
}

func airframeHours(t *testing.T, c *refdata.Catalog, reg string) decimal.Decimal {
	t.Helper()
	ac, err := c.ResolveAircraft(context.Background(), reg)
	require.NoError(t, err)
	return ac.TotalHours
}

func TestOpenSeedsFromAircraftHours(t *testing.T) {
	f := newFixture(t)

	lb, err := f.ledger.Open(context.Background(), "xa-chr", 3, 2026)
	require.NoError(t, err)

	assert.Equal(t, "XA-CHR", lb.Registration)
	assert.True(t, lb.PreviousHours.Equal(dec("3280.5")))
	assert.True(t, lb.CurrentHours.Equal(dec("3280.5")))
	assert.True(t, lb.RevisionThreshold.Equal(dec("3380.5")))
	assert.NotEmpty(t, lb.ID)

	again, err := f.ledger.Open(context.Background(), "XA-CHR", 3, 2026)
	require.NoError(t, err)
	assert.Equal(t, lb.ID, again.ID)
}

func TestOpenSeedsFromPreviousPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dec25, err := f.ledger.Open(ctx, "XA-CHR", 12, 2025)
	require.NoError(t, err)
	_, err = f.ledger.Append(ctx, dec25.ID, flight("2.47", "R. Ortega"))
	require.NoError(t, err)

	jan, err := f.ledger.Open(ctx, "XA-CHR", 1, 2026)
	require.NoError(t, err)
	assert.True(t, jan.PreviousHours.Equal(dec("3282.97")), "got %s", jan.PreviousHours)
}

func TestOpenErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Open(ctx, "XX-NOPE", 3, 2026)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = f.ledger.Open(ctx, "XA-CHR", 13, 2026)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))

	_, err = f.ledger.Open(ctx, "", 3, 2026)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))
}

func TestAppendAdvancesHoursExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lb, err := f.ledger.Open(ctx, "XA-CHR", 3, 2026)
	require.NoError(t, err)

	e, err := f.ledger.Append(ctx, lb.ID, flight("2.47", "R. Ortega"))
	require.NoError(t, err)
	assert.Equal(t, "3282.97", e.CellHours.String())

	view, err := f.ledger.Get(ctx, "XA-CHR", 3, 2026)
	require.NoError(t, err)
	assert.Equal(t, "3282.97", view.Logbook.CurrentHours.String())
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "3282.97", view.Entries[0].CellHours.String())
	assert.Equal(t, "3282.97", airframeHours(t, f.catalog, "XA-CHR").String())
}

func TestDeleteSoleEntryRestoresPreviousHours(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lb, err := f.ledger.Open(ctx, "XA-CHR", 3, 2026)
	require.NoError(t, err)
	e, err := f.ledger.Append(ctx, lb.ID, flight("2.47", "R. Ortega"))
	require.NoError(t, err)

	require.NoError(t, f.ledger.Delete(ctx, e.ID))

	view, err := f.ledger.View(ctx, lb.ID)
	require.NoError(t, err)
	assert.True(t, view.Logbook.CurrentHours.Equal(view.Logbook.PreviousHours))
	assert.Empty(t, view.Entries)
	assert.Equal(t, "3280.5", airframeHours(t, f.catalog, "XA-CHR").String())

	err = f.ledger.Delete(ctx, e.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestDeleteMiddleEntryRederivesCellHours(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lb, err := f.ledger.Open(ctx, "XB-PCX", 3, 2026)
	require.NoError(t, err)

	var ids []string
	for _, total := range []string{"1.0", "2.0", "3.0"} {
		e, err := f.ledger.Append(ctx, lb.ID, flight(total, "L. Vega"))
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	require.NoError(t, f.ledger.Delete(ctx, ids[1]))

	view, err := f.ledger.View(ctx, lb.ID)
	require.NoError(t, err)
	require.Len(t, view.Entries, 2)
	assert.Equal(t, "1876.2", view.Entries[0].CellHours.String())
	assert.Equal(t, "1879.2", view.Entries[1].CellHours.String())
	assert.Equal(t, "1879.2", view.Logbook.CurrentHours.String())
}

func TestLedgerInvariantUnderRandomMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	lb, err := f.ledger.Open(ctx, "XA-SKY", 3, 2026)
	require.NoError(t, err)
	startAirframe := airframeHours(t, f.catalog, "XA-SKY")

	var live []string
	for i := 0; i < 200; i++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			idx := rng.Intn(len(live))
			require.NoError(t, f.ledger.Delete(ctx, live[idx]))
			live = append(live[:idx], live[idx+1:]...)
			continue
		}
		total := decimal.New(int64(rng.Intn(600)+1), -2)
		e, err := f.ledger.Append(ctx, lb.ID, flight(total.String(), "M. Ruiz"))
		require.NoError(t, err)
		live = append(live, e.ID)
	}

	view, err := f.ledger.View(ctx, lb.ID)
	require.NoError(t, err)
	require.Len(t, view.Entries, len(live))

	sum := decimal.Zero
	for _, e := range view.Entries {
		sum = sum.Add(e.FlightTimeTotal)
	}
	assert.True(t, view.Logbook.CurrentHours.Equal(view.Logbook.PreviousHours.Add(sum)))
	assert.True(t, airframeHours(t, f.catalog, "XA-SKY").Equal(startAirframe.Add(sum)))
	if len(view.Entries) > 0 {
		assert.True(t, view.Entries[len(view.Entries)-1].CellHours.Equal(view.Logbook.CurrentHours))
	}
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lb, err := f.ledger.Open(ctx, "XA-LRJ", 3, 2026)
	require.NoError(t, err)

	const writers = 25
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Append(ctx, lb.ID, flight("1.5", "A. Castro"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := f.ledger.View(ctx, lb.ID)
	require.NoError(t, err)
	assert.Equal(t, "5157.8", view.Logbook.CurrentHours.String())
	assert.Len(t, view.Entries, writers)
	assert.Equal(t, 0, f.ledger.locks.size())
}

func TestConcurrentOpenCreatesOneLogbook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids := make(chan string, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lb, err := f.ledger.Open(ctx, "XA-CHR", 4, 2026)
			assert.NoError(t, err)
			ids <- lb.ID
		}()
	}
	wg.Wait()
	close(ids)

	first := <-ids
	for id := range ids {
		assert.Equal(t, first, id)
	}
}

// staleStore loses the version race a fixed number of times before delegating.
type staleStore struct {
	*MemoryStore
	failures int
	calls    int
}

func (s *staleStore) AppendEntry(ctx context.Context, m Mutation, e Entry) (Entry, error) {
	s.calls++
	if s.calls <= s.failures {
		return Entry{}, ErrStaleVersion
	}
	return s.MemoryStore.AppendEntry(ctx, m, e)
}

func TestAppendRetriesStaleVersion(t *testing.T) {
	catalog := refdata.NewDefaultCatalog()

	tests := []struct {
		name     string
		failures int
		wantErr  bool
	}{
		{name: "recovers", failures: 2},
		{name: "gives up", failures: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &staleStore{MemoryStore: NewMemoryStore(catalog), failures: tt.failures}
			ledger := NewLedger(store, catalog, nil, nil, quietLogger())

			lb, err := ledger.Open(context.Background(), "XB-PCX", 5, 2026)
			require.NoError(t, err)

			_, err = ledger.Append(context.Background(), lb.ID, flight("1.0", "L. Vega"))
			if tt.wantErr {
				assert.True(t, apperr.IsKind(err, apperr.KindConflict))
				assert.Equal(t, DefaultMaxAttempts, store.calls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.failures+1, store.calls)
		})
	}
}

// staleDeleteStore loses the version race on deletes a fixed number of times.
type staleDeleteStore struct {
	*MemoryStore
	failures int
	calls    int
}

func (s *staleDeleteStore) DeleteEntry(ctx context.Context, m Mutation, entryID string) error {
	s.calls++
	if s.calls <= s.failures {
		return ErrStaleVersion
	}
	return s.MemoryStore.DeleteEntry(ctx, m, entryID)
}

func TestDeleteRetriesStaleVersion(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		wantErr  bool
	}{
		{name: "recovers", failures: 2},
		{name: "gives up", failures: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			catalog := refdata.NewDefaultCatalog()
			store := &staleDeleteStore{MemoryStore: NewMemoryStore(catalog), failures: tt.failures}
			ledger := NewLedger(store, catalog, nil, nil, quietLogger())

			lb, err := ledger.Open(ctx, "XB-PCX", 5, 2026)
			require.NoError(t, err)
			e, err := ledger.Append(ctx, lb.ID, flight("1.0", "L. Vega"))
			require.NoError(t, err)

			err = ledger.Delete(ctx, e.ID)
			view, verr := ledger.View(ctx, lb.ID)
			require.NoError(t, verr)

			if tt.wantErr {
				assert.True(t, apperr.IsKind(err, apperr.KindConflict))
				assert.Equal(t, DefaultMaxAttempts, store.calls)
				assert.Len(t, view.Entries, 1, "a failed delete writes nothing")
				assert.Equal(t, "1876.2", view.Logbook.CurrentHours.String())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.failures+1, store.calls)
			assert.Empty(t, view.Entries)
			assert.True(t, view.Logbook.CurrentHours.Equal(lb.PreviousHours))
		})
	}
}

func TestConcurrentAppendsAndDeletesAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lb, err := f.ledger.Open(ctx, "XA-CHR", 3, 2026)
	require.NoError(t, err)

	const seeded, appends = 50, 100
	var doomed []string
	for i := 0; i < seeded; i++ {
		e, err := f.ledger.Append(ctx, lb.ID, flight("1.13", "A. Castro"))
		require.NoError(t, err)
		doomed = append(doomed, e.ID)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		deleted   int
		notFound  int
		appendErr []error
	)
	for i := 0; i < appends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.Append(ctx, lb.ID, flight("1.13", "B. Ruiz")); err != nil {
				mu.Lock()
				appendErr = append(appendErr, err)
				mu.Unlock()
			}
		}()
	}
	// Every seeded entry is deleted twice at once; exactly one delete may win.
	for _, id := range doomed {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				err := f.ledger.Delete(ctx, id)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					deleted++
				case apperr.IsKind(err, apperr.KindNotFound):
					notFound++
				default:
					appendErr = append(appendErr, err)
				}
			}(id)
		}
	}
	wg.Wait()

	require.Empty(t, appendErr)
	assert.Equal(t, seeded, deleted)
	assert.Equal(t, seeded, notFound)

	view, err := f.ledger.View(ctx, lb.ID)
	require.NoError(t, err)
	require.Len(t, view.Entries, appends)

	sum := decimal.Zero
	for _, e := range view.Entries {
		sum = sum.Add(e.FlightTimeTotal)
	}
	assert.True(t, view.Logbook.CurrentHours.Equal(lb.PreviousHours.Add(sum)))
	assert.Equal(t, "3393.5", view.Logbook.CurrentHours.String())
	assert.Equal(t, "3393.5", airframeHours(t, f.catalog, "XA-CHR").String())
	assert.Equal(t, 0, f.ledger.locks.size())
}

func TestAppendComputesSplitFromClockTimes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lb, err := f.ledger.Open(ctx, "XA-CHR", 3, 2026)
	require.NoError(t, err)

	in := flight("0", "R. Ortega")
	in.Departure, in.Arrival = "23:00", "01:00"
	e, err := f.ledger.Append(ctx, lb.ID, in)
	require.NoError(t, err)

	assert.Equal(t, "2", e.FlightTimeTotal.String())
	assert.True(t, e.FlightTimeNight.Equal(dec("2")))
	assert.True(t, e.FlightTimeDay.IsZero())
	assert.True(t, e.PICHours.Equal(dec("2")))
}

func TestAppendSplitsLoggedTotalByClockTimes(t *testing.T) {
	// MMMX and MMTO put the start of night at 18:36.
	tests := []struct {
		name               string
		total              string
		departure, arrival string
		wantDay, wantNight string
	}{
		{name: "all night", total: "2", departure: "23:00", arrival: "01:00", wantDay: "0", wantNight: "2"},
		{name: "dusk", total: "1.5", departure: "18:00", arrival: "19:00", wantDay: "1.1", wantNight: "0.4"},
		{name: "night capped at total", total: "0.5", departure: "23:00", arrival: "01:00", wantDay: "0", wantNight: "0.5"},
		{name: "no clock times", total: "1.5", wantDay: "1.5", wantNight: "0"},
		{name: "unparseable clock times", total: "1.5", departure: "late", arrival: "later", wantDay: "1.5", wantNight: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			lb, err := f.ledger.Open(ctx, "XA-CHR", 3, 2026)
			require.NoError(t, err)

			in := flight(tt.total, "R. Ortega")
			in.Departure, in.Arrival = tt.departure, tt.arrival
			e, err := f.ledger.Append(ctx, lb.ID, in)
			require.NoError(t, err)

			assert.True(t, e.FlightTimeTotal.Equal(dec(tt.total)))
			assert.True(t, e.FlightTimeDay.Equal(dec(tt.wantDay)), "day %s", e.FlightTimeDay)
			assert.True(t, e.FlightTimeNight.Equal(dec(tt.wantNight)), "night %s", e.FlightTimeNight)
		})
	}
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lb, err := f.ledger.Open(ctx, "XA-CHR", 3, 2026)
	require.NoError(t, err)

	tests := []struct {
		name string
		edit func(*EntryInput)
	}{
		{"missing pic", func(in *EntryInput) { in.PIC = "" }},
		{"missing destination", func(in *EntryInput) { in.To = " " }},
		{"missing date", func(in *EntryInput) { in.Date = time.Time{} }},
		{"negative total", func(in *EntryInput) { in.FlightTimeTotal = dec("-1") }},
		{"day night mismatch", func(in *EntryInput) { in.FlightTimeDay, in.FlightTimeNight = dec("1"), dec("0.5") }},
		{"degenerate clock span", func(in *EntryInput) {
			in.FlightTimeTotal = decimal.Zero
			in.Departure, in.Arrival = "10:00", "09:00"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := flight("2.0", "R. Ortega")
			tt.edit(&in)
			_, err := f.ledger.Append(ctx, lb.ID, in)
			assert.True(t, apperr.IsKind(err, apperr.KindInvalidArgument), "got %v", err)
		})
	}

	_, err = f.ledger.Append(ctx, "missing", flight("1.0", "R. Ortega"))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	view, err := f.ledger.View(ctx, lb.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Entries)
	assert.True(t, view.Logbook.CurrentHours.Equal(view.Logbook.PreviousHours))
}

func TestAppendAllowance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		reg  string
		to   string
		want string
	}{
		{"XA-LRJ", "MMTO", "445"},
		{"XA-LRJ", "MMUN", "445"},
		{"XA-CHR", "MMUN", "445"},
		{"XA-CHR", "MMTO", "0"},
		{"XB-PCX", "MMUN", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.reg+"-"+tt.to, func(t *testing.T) {
			lb, err := f.ledger.Open(ctx, tt.reg, 6, 2026)
			require.NoError(t, err)
			in := flight("1.0", "A. Castro")
			in.To = tt.to
			e, err := f.ledger.Append(ctx, lb.ID, in)
			require.NoError(t, err)
			assert.True(t, e.Allowance.Equal(dec(tt.want)), "got %s", e.Allowance)
		})
	}
}

func TestMonthlySummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lb, err := f.ledger.Open(ctx, "XA-LRJ", 3, 2026)
	require.NoError(t, err)

	in := flight("2.0", "Ana")
	in.SIC = "Beto"
	_, err = f.ledger.Append(ctx, lb.ID, in)
	require.NoError(t, err)

	in = flight("3.5", "Beto")
	in.SIC, in.SICHours = "Ana", dec("1.5")
	_, err = f.ledger.Append(ctx, lb.ID, in)
	require.NoError(t, err)

	_, err = f.ledger.Append(ctx, lb.ID, flight("0.5", "Carla"))
	require.NoError(t, err)

	view, err := f.ledger.Get(ctx, "XA-LRJ", 3, 2026)
	require.NoError(t, err)

	crew := view.Summary.Crew
	require.Len(t, crew, 3)
	assert.Equal(t, "Beto", crew[0].Name)
	assert.Equal(t, "5.5", crew[0].TotalHours.String())
	assert.Equal(t, "3.5", crew[0].PICHours.String())
	assert.Equal(t, "2", crew[0].SICHours.String())
	assert.Equal(t, "Ana", crew[1].Name)
	assert.Equal(t, "3.5", crew[1].TotalHours.String())
	assert.Equal(t, "Carla", crew[2].Name)
	assert.Equal(t, "1335", view.Summary.AllowanceTotal.String())

	var pic, sic decimal.Decimal
	for _, e := range view.Entries {
		pic = pic.Add(e.PICHours)
		sic = sic.Add(e.SICHours)
	}
	var gotPIC, gotSIC decimal.Decimal
	for _, c := range crew {
		gotPIC = gotPIC.Add(c.PICHours)
		gotSIC = gotSIC.Add(c.SICHours)
	}
	assert.True(t, pic.Equal(gotPIC))
	assert.True(t, sic.Equal(gotSIC))
}

func TestRevisionDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lb, err := f.ledger.Open(ctx, "XB-PCX", 3, 2026)
	require.NoError(t, err)

	view, err := f.ledger.View(ctx, lb.ID)
	require.NoError(t, err)
	assert.False(t, view.RevisionDue)

	_, err = f.ledger.Append(ctx, lb.ID, flight("100", "L. Vega"))
	require.NoError(t, err)

	view, err = f.ledger.View(ctx, lb.ID)
	require.NoError(t, err)
	assert.True(t, view.RevisionDue)
}

func TestCrewReportAcrossAircraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lrj, err := f.ledger.Open(ctx, "XA-LRJ", 7, 2026)
	require.NoError(t, err)
	chr, err := f.ledger.Open(ctx, "XA-CHR", 7, 2026)
	require.NoError(t, err)
	other, err := f.ledger.Open(ctx, "XA-CHR", 8, 2026)
	require.NoError(t, err)

	_, err = f.ledger.Append(ctx, lrj.ID, flight("2.0", "Ana"))
	require.NoError(t, err)
	_, err = f.ledger.Append(ctx, chr.ID, flight("1.25", "Ana"))
	require.NoError(t, err)
	_, err = f.ledger.Append(ctx, other.ID, flight("9.0", "Ana"))
	require.NoError(t, err)

	report, err := f.ledger.CrewReport(ctx, 7, 2026)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Logbooks)
	require.Len(t, report.Crew, 1)
	assert.Equal(t, "3.25", report.Crew[0].TotalHours.String())
	assert.Equal(t, []string{"XA-CHR", "XA-LRJ"}, report.Crew[0].Aircraft)
	assert.Equal(t, "445", report.AllowanceTotal.String())

	_, err = f.ledger.CrewReport(ctx, 0, 2026)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func TestLedgerPublishesEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	f.ledger.SetPublisher(pub)

	lb, err := f.ledger.Open(ctx, "XA-LRJ", 3, 2026)
	require.NoError(t, err)
	e, err := f.ledger.Append(ctx, lb.ID, flight("1.2", "Ana"))
	require.NoError(t, err, "publish failures must not fail the mutation")
	require.NoError(t, f.ledger.Delete(ctx, e.ID))

	require.Len(t, pub.events, 3)
	assert.Equal(t, EventLogbookCreated, pub.events[0].Type)
	assert.Equal(t, EventEntryAppended, pub.events[1].Type)
	assert.Equal(t, "1.2", pub.events[1].Delta.String())
	assert.Equal(t, "445", pub.events[1].Allowance.String())
	assert.Equal(t, EventEntryDeleted, pub.events[2].Type)
	assert.Equal(t, "-1.2", pub.events[2].Delta.String())
	assert.True(t, pub.events[2].CurrentHours.Equal(lb.PreviousHours))
}

// blockingPublisher holds the first appended-entry event until released.
type blockingPublisher struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPublisher) Publish(_ context.Context, ev Event) error {
	if ev.Type != EventEntryAppended {
		return nil
	}
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	return nil
}

func TestSlowPublisherDoesNotBlockMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pub := &blockingPublisher{entered: make(chan struct{}), release: make(chan struct{})}
	f.ledger.SetPublisher(pub)

	lb, err := f.ledger.Open(ctx, "XA-LRJ", 3, 2026)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.ledger.Append(ctx, lb.ID, flight("1.0", "Ana"))
		firstDone <- err
	}()
	<-pub.entered

	secondDone := make(chan error, 1)
	go func() {
		_, err := f.ledger.Append(ctx, lb.ID, flight("2.0", "Ana"))
		secondDone <- err
	}()

	select {
	case err := <-secondDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(pub.release)
		t.Fatal("append waited on another append's publish")
	}

	close(pub.release)
	require.NoError(t, <-firstDone)

	view, err := f.ledger.View(ctx, lb.ID)
	require.NoError(t, err)
	assert.Equal(t, "5123.3", view.Logbook.CurrentHours.String())
}

func TestAllowanceRulePrecedence(t *testing.T) {
	rules := AllowanceRules{
		{Registration: "XA-ABC", Amount: dec("100")},
		{Registration: "XA-ABC", Destination: "MMUN", Amount: dec("445")},
	}
	assert.Equal(t, "445", rules.Allowance("xa-abc", "mmun").String())
	assert.Equal(t, "100", rules.Allowance("XA-ABC", "MMTO").String())
	assert.True(t, rules.Allowance("XA-XYZ", "MMUN").IsZero())
}

func TestKeyPrev(t *testing.T) {
	assert.Equal(t, Key{"XA-CHR", 12, 2025}, Key{"XA-CHR", 1, 2026}.Prev())
	assert.Equal(t, Key{"XA-CHR", 4, 2026}, Key{"XA-CHR", 5, 2026}.Prev())
}
