package refdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"flightops/internal/apperr"
)

// Catalog is an in-memory reference data store. It backs the memory deployment and the tests,
// and is what the sunset model reads from.
type Catalog struct {
	mu         sync.RWMutex
	aerodromes map[string]Aerodrome
	aircraft   map[string]Aircraft
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		aerodromes: make(map[string]Aerodrome),
		aircraft:   make(map[string]Aircraft),
	}
}

// ResolveAerodrome implements AerodromeResolver.
func (c *Catalog) ResolveAerodrome(_ context.Context, icao string) (Aerodrome, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.aerodromes[NormalizeICAO(icao)]
	if !ok {
		return Aerodrome{}, apperr.NotFound("refdata.ResolveAerodrome", "aerodrome %q not found", icao)
	}
	return a, nil
}

// ResolveAircraft implements AircraftResolver.
func (c *Catalog) ResolveAircraft(_ context.Context, registration string) (Aircraft, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.aircraft[NormalizeRegistration(registration)]
	if !ok {
		return Aircraft{}, apperr.NotFound("refdata.ResolveAircraft", "aircraft %q not found", registration)
	}
	return a, nil
}

// SunsetMinute returns the approximate local sunset of an aerodrome as minutes after midnight.
func (c *Catalog) SunsetMinute(icao string) (int, bool) {
	c.mu.RLock()
	a, ok := c.aerodromes[NormalizeICAO(icao)]
	c.mu.RUnlock()
	if !ok || a.Sunset == "" {
		return 0, false
	}

	t, err := time.Parse("15:04", a.Sunset)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// SeedAerodrome inserts a if its code is not present yet.
func (c *Catalog) SeedAerodrome(_ context.Context, a Aerodrome) (bool, error) {
	a.ICAO = NormalizeICAO(a.ICAO)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.aerodromes[a.ICAO]; ok {
		return false, nil
	}
	c.aerodromes[a.ICAO] = a
	return true, nil
}

// SeedAircraft inserts a if its registration is not present yet. Existing airframe hours are
// never overwritten.
func (c *Catalog) SeedAircraft(_ context.Context, a Aircraft) (bool, error) {
	a.Registration = NormalizeRegistration(a.Registration)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.aircraft[a.Registration]; ok {
		return false, nil
	}
	c.aircraft[a.Registration] = a
	return true, nil
}

// AdjustHours adds delta to an aircraft's airframe hours. Unknown registrations are ignored.
func (c *Catalog) AdjustHours(registration string, delta decimal.Decimal) {
	reg := NormalizeRegistration(registration)

	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.aircraft[reg]; ok {
		a.TotalHours = a.TotalHours.Add(delta)
		c.aircraft[reg] = a
	}
}

// Aerodromes returns all aerodromes sorted by code.
func (c *Catalog) Aerodromes() []Aerodrome {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Aerodrome, 0, len(c.aerodromes))
	for _, a := range c.aerodromes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ICAO < out[j].ICAO })
	return out
}
