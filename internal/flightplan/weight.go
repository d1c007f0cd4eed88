package flightplan

import "flightops/internal/refdata"

const (
	// FuelDensity converts liters of fuel to kilograms.
	FuelDensity = 0.8

	DefaultPayloadKg     = 800.0
	DefaultEmptyWeightKg = 3500.0
	DefaultMaxWeightKg   = 5700.0

	// ReferenceCG is the fixed center of gravity reported for every load, in percent MAC.
	ReferenceCG = 25.0
)

// WeightBalance is the load snapshot of a planned flight.
//
// TotalWeightKg == EmptyWeightKg + PayloadKg + FuelWeightKg and
// WithinLimits == (TotalWeightKg <= MaxWeightKg).
type WeightBalance struct {
	EmptyWeightKg float64 `json:"empty_weight_kg"`
	PayloadKg     float64 `json:"payload_kg"`
	FuelWeightKg  float64 `json:"fuel_weight_kg"`
	TotalWeightKg float64 `json:"total_weight_kg"`
	MaxWeightKg   float64 `json:"max_weight_kg"`
	CGPercentMAC  float64 `json:"cg_percent_mac"`
	WithinLimits  bool    `json:"within_limits"`
}

// WeightBalanceEvaluator is a pass/fail load gate, not a moment-arm solver.
type WeightBalanceEvaluator struct {
	// MaxWeightKg is the ceiling used for aircraft without their own maximum weight.
	MaxWeightKg float64
}

// NewWeightBalanceEvaluator returns an evaluator with the given fleet-wide ceiling. A
// non-positive ceiling selects DefaultMaxWeightKg.
func NewWeightBalanceEvaluator(maxWeightKg float64) WeightBalanceEvaluator {
	if maxWeightKg <= 0 {
		maxWeightKg = DefaultMaxWeightKg
	}
	return WeightBalanceEvaluator{MaxWeightKg: maxWeightKg}
}

// Evaluate computes the load of aircraft carrying payloadKg (nil selects the standard payload)
// and fuelLiters of fuel.
func (w WeightBalanceEvaluator) Evaluate(aircraft refdata.Aircraft, payloadKg *float64, fuelLiters float64) WeightBalance {
	empty := aircraft.EmptyWeightKg
	if empty <= 0 {
		empty = DefaultEmptyWeightKg
	}
	payload := DefaultPayloadKg
	if payloadKg != nil {
		payload = *payloadKg
	}
	limit := aircraft.MaxWeightKg
	if limit <= 0 {
		limit = w.MaxWeightKg
	}
	if limit <= 0 {
		limit = DefaultMaxWeightKg
	}

	fuel := round2(fuelLiters * FuelDensity)
	total := round2(empty + payload + fuel)
	return WeightBalance{
		EmptyWeightKg: empty,
		PayloadKg:     payload,
		FuelWeightKg:  fuel,
		TotalWeightKg: total,
		MaxWeightKg:   limit,
		CGPercentMAC:  ReferenceCG,
		WithinLimits:  total <= limit,
	}
}
