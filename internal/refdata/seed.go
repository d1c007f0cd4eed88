package refdata

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Seeder stores reference data idempotently: seeding a record that already exists is a no-op
// that reports inserted == false.
type Seeder interface {
	SeedAerodrome(ctx context.Context, a Aerodrome) (inserted bool, err error)
	SeedAircraft(ctx context.Context, a Aircraft) (inserted bool, err error)
}

// Dataset is a batch of reference data to seed.
type Dataset struct {
	Aerodromes []Aerodrome
	Aircraft   []Aircraft
}

// SeedResult counts the records actually inserted.
type SeedResult struct {
	Aerodromes int
	Aircraft   int
}

// Seed writes ds into s. It is meant to run once at startup or from the seed command, never
// from a read path. Running it twice inserts nothing the second time.
func Seed(ctx context.Context, s Seeder, ds Dataset, logger *logrus.Logger) (SeedResult, error) {
	var res SeedResult

	for _, a := range ds.Aerodromes {
		ok, err := s.SeedAerodrome(ctx, a)
		if err != nil {
			return res, fmt.Errorf("seed aerodrome %s: %w", a.ICAO, err)
		}
		if ok {
			res.Aerodromes++
		}
	}

	for _, a := range ds.Aircraft {
		ok, err := s.SeedAircraft(ctx, a)
		if err != nil {
			return res, fmt.Errorf("seed aircraft %s: %w", a.Registration, err)
		}
		if ok {
			res.Aircraft++
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"aerodromes": res.Aerodromes,
			"aircraft":   res.Aircraft,
		}).Info("Reference data seeded")
	}

	return res, nil
}

// DefaultDataset returns the operator's home network and fleet.
func DefaultDataset() Dataset {
	return Dataset{
		Aerodromes: []Aerodrome{
			{ICAO: "MMMX", Name: "Mexico City International", Coordinates: `19°26'10"N 99°04'19"W`, Sunset: "19:05"},
			{ICAO: "MMTO", Name: "Toluca International", Coordinates: `19°20'13"N 99°33'58"W`, Sunset: "19:07"},
			{ICAO: "MMUN", Name: "Cancun International", Coordinates: `21°02'12"N 86°52'37"W`, Sunset: "18:35"},
			{ICAO: "MMGL", Name: "Guadalajara International", Coordinates: `20°31'18"N 103°18'40"W`, Sunset: "19:25"},
			{ICAO: "MMMY", Name: "Monterrey International", Coordinates: `25°46'41"N 100°06'25"W`, Sunset: "19:15"},
			{ICAO: "MMAA", Name: "Acapulco International", Coordinates: `16°45'26"N 99°45'13"W`, Sunset: "18:55"},
			{ICAO: "MMPR", Name: "Puerto Vallarta International", Coordinates: `20°40'48"N 105°15'15"W`, Sunset: "19:30"},
			{ICAO: "MMSD", Name: "Los Cabos International", Coordinates: `23°09'06"N 109°43'16"W`, Sunset: "18:50"},
			{ICAO: "MMOX", Name: "Oaxaca International", Coordinates: `16°59'59"N 96°43'36"W`, Sunset: "18:50"},
			{ICAO: "MMQT", Name: "Queretaro Intercontinental", Coordinates: `20°37'24"N 100°11'08"W`, Sunset: "19:15"},
		},
		Aircraft: []Aircraft{
			{Registration: "XA-LRJ", Model: "Learjet 45XR", ConsumptionRate: 750, TotalHours: decimal.RequireFromString("5120.3"), EmptyWeightKg: 6100, MaxWeightKg: 9752},
			{Registration: "XA-CHR", Model: "King Air 350", ConsumptionRate: 380, TotalHours: decimal.RequireFromString("3280.5"), EmptyWeightKg: 4100, MaxWeightKg: 6800},
			{Registration: "XB-PCX", Model: "Cessna 208B Grand Caravan", ConsumptionRate: 220, TotalHours: decimal.RequireFromString("1875.2"), EmptyWeightKg: 2145, MaxWeightKg: 3970},
			{Registration: "XA-SKY", Model: "Piper PA-31 Navajo", TotalHours: decimal.RequireFromString("9021.7"), EmptyWeightKg: 1950, MaxWeightKg: 2948},
		},
	}
}

// NewDefaultCatalog returns a Catalog seeded with DefaultDataset.
func NewDefaultCatalog() *Catalog {
	c := NewCatalog()
	_, _ = Seed(context.Background(), c, DefaultDataset(), nil)
	return c
}
