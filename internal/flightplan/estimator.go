// Package flightplan computes flight parameters and weight and balance for planned flights
// and manages flight plans through their filing lifecycle.
package flightplan

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"flightops/internal/apperr"
	"flightops/internal/geo"
	"flightops/internal/refdata"
)

// DefaultConsumptionRate is used for aircraft without a recorded fuel consumption, in L/h.
const DefaultConsumptionRate = 100.0

// Parameters are the computed route figures of a flight.
type Parameters struct {
	Departure       string  `json:"departure"`
	Arrival         string  `json:"arrival"`
	Registration    string  `json:"registration"`
	SpeedKts        float64 `json:"speed_kts"`
	DistanceKm      float64 `json:"distance_km"`
	DistanceNM      float64 `json:"distance_nm"`
	ETEMinutes      int     `json:"ete_minutes"`
	FuelLiters      float64 `json:"fuel_liters"`
	ConsumptionRate float64 `json:"consumption_rate"`
	DefaultRate     bool    `json:"default_rate,omitempty"`
}

// Estimator computes distance, time en route and fuel burn between two aerodromes.
type Estimator struct {
	aerodromes refdata.AerodromeResolver
	aircraft   refdata.AircraftResolver
}

// NewEstimator creates an estimator.
func NewEstimator(aerodromes refdata.AerodromeResolver, aircraft refdata.AircraftResolver) *Estimator {
	return &Estimator{aerodromes: aerodromes, aircraft: aircraft}
}

// Estimate computes the flight parameters for registration flying departure to arrival at
// speedKts.
func (e *Estimator) Estimate(ctx context.Context, departure, arrival, registration string, speedKts float64) (Parameters, error) {
	p, _, err := e.estimate(ctx, departure, arrival, registration, speedKts)
	return p, err
}

func (e *Estimator) estimate(ctx context.Context, departure, arrival, registration string, speedKts float64) (Parameters, refdata.Aircraft, error) {
	const op = "flightplan.Estimate"

	if speedKts <= 0 || math.IsNaN(speedKts) || math.IsInf(speedKts, 0) {
		return Parameters{}, refdata.Aircraft{}, apperr.Invalid(op, "speed must be positive, got %v", speedKts)
	}
	departure = refdata.NormalizeICAO(departure)
	arrival = refdata.NormalizeICAO(arrival)
	registration = refdata.NormalizeRegistration(registration)
	if departure == "" || arrival == "" || registration == "" {
		return Parameters{}, refdata.Aircraft{}, apperr.Invalid(op, "departure, arrival and registration are required")
	}

	var (
		dep, arr refdata.Aerodrome
		aircraft refdata.Aircraft
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		dep, err = e.aerodromes.ResolveAerodrome(gctx, departure)
		return err
	})
	g.Go(func() (err error) {
		arr, err = e.aerodromes.ResolveAerodrome(gctx, arrival)
		return err
	})
	g.Go(func() (err error) {
		aircraft, err = e.aircraft.ResolveAircraft(gctx, registration)
		return err
	})
	if err := g.Wait(); err != nil {
		return Parameters{}, refdata.Aircraft{}, err
	}

	from, to := dep.Position(), arr.Position()
	if from.IsZero() {
		return Parameters{}, refdata.Aircraft{}, apperr.Invalid(op, "aerodrome %s has no usable position", dep.ICAO)
	}
	if to.IsZero() {
		return Parameters{}, refdata.Aircraft{}, apperr.Invalid(op, "aerodrome %s has no usable position", arr.ICAO)
	}

	dist := geo.Between(from, to)
	rate, fallback := aircraft.ConsumptionRate, false
	if rate <= 0 {
		rate, fallback = DefaultConsumptionRate, true
	}

	ete := ETEMinutes(dist.NM, speedKts)
	return Parameters{
		Departure:       departure,
		Arrival:         arrival,
		Registration:    registration,
		SpeedKts:        speedKts,
		DistanceKm:      round2(dist.Km),
		DistanceNM:      round2(dist.NM),
		ETEMinutes:      ete,
		FuelLiters:      FuelBurn(dist.NM/speedKts, rate),
		ConsumptionRate: rate,
		DefaultRate:     fallback,
	}, aircraft, nil
}

// ETEMinutes returns the rounded time en route, in minutes, for nm nautical miles at kts knots.
func ETEMinutes(nm, kts float64) int {
	return int(math.Round(nm / kts * 60))
}

// FuelBurn returns the rounded fuel burn, in liters, for hours of flight at rate L/h.
func FuelBurn(hours, rate float64) float64 {
	return math.Round(hours * rate)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
