// Package daynight splits a flight's clock time into day and night portions using an
// approximate per-aerodrome sunset model.
package daynight

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	minutesPerDay = 24 * 60

	// DefaultSunsetMinute is used for aerodromes without a known sunset (18:00).
	DefaultSunsetMinute = 18 * 60

	// NightEndMinute is the fixed end of the night window (06:00).
	NightEndMinute = 6 * 60

	// TwilightMinutes is subtracted from the averaged sunset to get the start of night.
	TwilightMinutes = 30

	// DefaultMaxSpanMinutes caps how long a midnight-crossing flight may be. An arrival clock
	// time earlier than departure is only read as "next day" when the resulting span fits.
	DefaultMaxSpanMinutes = 12 * 60
)

var sixty = decimal.NewFromInt(60)

// SunsetSource reports the approximate local sunset of an aerodrome in minutes after midnight.
type SunsetSource interface {
	SunsetMinute(icao string) (int, bool)
}

// Split is the result of splitting a flight.
type Split struct {
	TotalMinutes int `json:"total_minutes"`
	DayMinutes   int `json:"day_minutes"`
	NightMinutes int `json:"night_minutes"`

	TotalHours decimal.Decimal `json:"total_hours"`
	DayHours   decimal.Decimal `json:"day_hours"`
	NightHours decimal.Decimal `json:"night_hours"`

	NightStart      string `json:"night_start"`
	CrossesMidnight bool   `json:"crosses_midnight"`
}

// Splitter computes day/night splits. It holds no mutable state and is safe for concurrent use.
type Splitter struct {
	sunsets        SunsetSource
	maxSpanMinutes int
}

// NewSplitter returns a splitter reading sunsets from src. A nil src uses the 18:00 fallback
// for every aerodrome.
func NewSplitter(src SunsetSource) *Splitter {
	return &Splitter{sunsets: src, maxSpanMinutes: DefaultMaxSpanMinutes}
}

// WithMaxSpan returns a copy of s accepting midnight crossings up to minutes long.
func (s *Splitter) WithMaxSpan(minutes int) *Splitter {
	cp := *s
	if minutes > 0 && minutes < minutesPerDay {
		cp.maxSpanMinutes = minutes
	}
	return &cp
}

// NightStartMinute returns the start of night for a route: the average of both endpoint sunsets
// minus the twilight allowance.
func (s *Splitter) NightStartMinute(depICAO, arrICAO string) int {
	avg := (s.sunset(depICAO) + s.sunset(arrICAO)) / 2
	return mod(avg-TwilightMinutes, minutesPerDay)
}

func (s *Splitter) sunset(icao string) int {
	if s.sunsets == nil {
		return DefaultSunsetMinute
	}
	if m, ok := s.sunsets.SunsetMinute(icao); ok {
		return m
	}
	return DefaultSunsetMinute
}

// Split divides the departure→arrival interval (both "HH:MM" local) into day and night.
//
// Unparseable clock strings and degenerate spans produce a zero Split, never an error.
func (s *Splitter) Split(departure, arrival, depICAO, arrICAO string) Split {
	dep, ok := ParseClock(departure)
	if !ok {
		return Split{}
	}
	arr, ok := ParseClock(arrival)
	if !ok {
		return Split{}
	}

	total, crosses := s.span(dep, arr)
	if total <= 0 {
		return Split{}
	}

	nightStart := s.NightStartMinute(depICAO, arrICAO)
	night := NightMinutes(dep, total, nightStart, NightEndMinute)

	return newSplit(total, night, nightStart, crosses)
}

// span returns the flight length in minutes, reading an earlier arrival as next-day when the
// corrected span stays within the cap.
func (s *Splitter) span(dep, arr int) (int, bool) {
	if arr > dep {
		return arr - dep, false
	}
	if arr == dep {
		return 0, false
	}
	total := arr + minutesPerDay - dep
	if total > s.maxSpanMinutes {
		return 0, false
	}
	return total, true
}

func newSplit(total, night, nightStart int, crosses bool) Split {
	totalHours := decimal.NewFromInt(int64(total)).Div(sixty).Round(2)
	dayHours := decimal.NewFromInt(int64(total - night)).Div(sixty).Round(2)

	return Split{
		TotalMinutes:    total,
		DayMinutes:      total - night,
		NightMinutes:    night,
		TotalHours:      totalHours,
		DayHours:        dayHours,
		NightHours:      totalHours.Sub(dayHours),
		NightStart:      FormatClock(nightStart),
		CrossesMidnight: crosses,
	}
}

// NightMinutes classifies each minute of [dep, dep+total) individually: a minute-of-day m is
// night when m >= nightStart or m < nightEnd. This is the reference algorithm.
func NightMinutes(dep, total, nightStart, nightEnd int) int {
	night := 0
	for i := 0; i < total; i++ {
		m := (dep + i) % minutesPerDay
		if m >= nightStart || m < nightEnd {
			night++
		}
	}
	return night
}

// NightMinutesClosedForm computes the same count as NightMinutes by intersecting the flight
// window with the night windows of each calendar day it touches.
func NightMinutesClosedForm(dep, total, nightStart, nightEnd int) int {
	if total <= 0 {
		return 0
	}

	// Night windows within a single day. When the two conditions overlap the whole day is night.
	type window struct{ from, to int }
	var day []window
	if nightStart <= nightEnd {
		day = []window{{0, minutesPerDay}}
	} else {
		day = []window{{0, nightEnd}, {nightStart, minutesPerDay}}
	}

	start := dep
	end := dep + total
	night := 0
	for k := start / minutesPerDay; k*minutesPerDay < end; k++ {
		base := k * minutesPerDay
		for _, w := range day {
			night += overlap(start, end, base+w.from, base+w.to)
		}
	}
	return night
}

func overlap(a0, a1, b0, b1 int) int {
	lo := max(a0, b0)
	hi := min(a1, b1)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

// ParseClock parses "HH:MM" (or "H:MM") into minutes after midnight.
func ParseClock(s string) (int, bool) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 || !digits(h) || !digits(m) {
		return 0, false
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, false
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatClock renders minutes after midnight as "HH:MM".
func FormatClock(minute int) string {
	minute = mod(minute, minutesPerDay)
	h := minute / 60
	m := minute % 60
	return pad2(h) + ":" + pad2(m)
}

func pad2(v int) string {
	if v < 10 {
		return "0" + strconv.Itoa(v)
	}
	return strconv.Itoa(v)
}
