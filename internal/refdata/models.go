// Package refdata holds aerodrome and aircraft reference data and the lookups the engine
// resolves them through.
package refdata

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"flightops/internal/geo"
)

// Aerodrome is immutable reference data looked up by ICAO code.
type Aerodrome struct {
	ICAO        string  `json:"icao"`
	Name        string  `json:"name"`
	Coordinates string  `json:"coordinates,omitempty"` // D°M'S"H D°M'S"H
	Latitude    float64 `json:"latitude,omitempty"`    // Used when Coordinates is empty.
	Longitude   float64 `json:"longitude,omitempty"`
	Sunset      string  `json:"sunset,omitempty"` // Approximate local sunset, HH:MM.
}

// Position decodes the aerodrome position, preferring the DMS string.
func (a Aerodrome) Position() geo.Position {
	if a.Coordinates != "" {
		return geo.ParsePosition(a.Coordinates)
	}
	return geo.Position{Latitude: a.Latitude, Longitude: a.Longitude}
}

// Aircraft is an airframe operated by the company.
type Aircraft struct {
	Registration    string          `json:"registration"`
	Model           string          `json:"model"`
	ConsumptionRate float64         `json:"consumption_rate,omitempty"` // L/h, zero when unknown.
	TotalHours      decimal.Decimal `json:"total_hours"`
	EmptyWeightKg   float64         `json:"empty_weight_kg,omitempty"`
	MaxWeightKg     float64         `json:"max_weight_kg,omitempty"`
}

// AerodromeResolver resolves an ICAO code. Unknown codes yield an apperr not-found error.
type AerodromeResolver interface {
	ResolveAerodrome(ctx context.Context, icao string) (Aerodrome, error)
}

// AircraftResolver resolves a registration. Unknown registrations yield an apperr not-found error.
type AircraftResolver interface {
	ResolveAircraft(ctx context.Context, registration string) (Aircraft, error)
}

// NormalizeICAO upper-cases and trims an aerodrome code.
func NormalizeICAO(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeRegistration upper-cases and trims an aircraft registration.
func NormalizeRegistration(reg string) string {
	return strings.ToUpper(strings.TrimSpace(reg))
}
