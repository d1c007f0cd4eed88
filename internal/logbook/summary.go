package logbook

import (
	"sort"

	"github.com/shopspring/decimal"
)

// crewTally accumulates hours per crew member across one or more logbooks.
type crewTally struct {
	byName map[string]*CrewHours
	seen   map[string]map[string]bool
}

func newCrewTally() *crewTally {
	return &crewTally{
		byName: make(map[string]*CrewHours),
		seen:   make(map[string]map[string]bool),
	}
}

func (t *crewTally) member(name string) *CrewHours {
	c, ok := t.byName[name]
	if !ok {
		c = &CrewHours{Name: name, PICHours: decimal.Zero, SICHours: decimal.Zero, TotalHours: decimal.Zero}
		t.byName[name] = c
		t.seen[name] = make(map[string]bool)
	}
	return c
}

// add credits an entry's PIC and SIC hours. registration is recorded when non-empty.
func (t *crewTally) add(e Entry, registration string) {
	if e.PIC != "" {
		c := t.member(e.PIC)
		c.PICHours = c.PICHours.Add(e.PICHours)
		c.TotalHours = c.TotalHours.Add(e.PICHours)
		t.fly(e.PIC, registration)
	}
	if e.SIC != "" {
		c := t.member(e.SIC)
		c.SICHours = c.SICHours.Add(e.SICHours)
		c.TotalHours = c.TotalHours.Add(e.SICHours)
		t.fly(e.SIC, registration)
	}
}

func (t *crewTally) fly(name, registration string) {
	if registration == "" || t.seen[name][registration] {
		return
	}
	t.seen[name][registration] = true
	c := t.byName[name]
	c.Aircraft = append(c.Aircraft, registration)
}

// sorted returns the tally ordered by total hours descending, then by name.
func (t *crewTally) sorted() []CrewHours {
	out := make([]CrewHours, 0, len(t.byName))
	for _, c := range t.byName {
		sort.Strings(c.Aircraft)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].TotalHours.Cmp(out[j].TotalHours); cmp != 0 {
			return cmp > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Summarize computes the monthly summary of one logbook's entries.
func Summarize(entries []Entry) MonthlySummary {
	tally := newCrewTally()
	total := decimal.Zero
	for _, e := range entries {
		tally.add(e, "")
		total = total.Add(e.Allowance)
	}
	return MonthlySummary{AllowanceTotal: total, Crew: tally.sorted()}
}

// deriveCellHours fills CellHours from previous hours and the running sum in insertion order
// and returns the resulting total.
func deriveCellHours(previous decimal.Decimal, entries []Entry) decimal.Decimal {
	running := previous
	for i := range entries {
		running = running.Add(entries[i].FlightTimeTotal)
		entries[i].CellHours = running
	}
	return running
}
