package flightplan

import (
	"context"
	"time"
)

// Status is a flight plan lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFiled     Status = "filed"
	StatusApproved  Status = "approved"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusDraft:    {StatusFiled},
	StatusFiled:    {StatusApproved, StatusDraft},
	StatusApproved: {StatusActive},
	StatusActive:   {StatusCompleted},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusFiled, StatusApproved, StatusActive, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether a plan in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Editable reports whether plans in status s accept patches.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusFiled
}

// Weather source flags.
const (
	WeatherLive     = "live"
	WeatherFallback = "fallback"
)

// Weather is the departure weather captured when a plan is computed. Source tells callers
// whether the values were observed or substituted.
type Weather struct {
	Station      string    `json:"station"`
	Summary      string    `json:"summary"`
	TemperatureC float64   `json:"temperature_c"`
	WindKts      float64   `json:"wind_kts"`
	VisibilityKm float64   `json:"visibility_km"`
	Source       string    `json:"source"`
	ObservedAt   time.Time `json:"observed_at"`
}

// WeatherSource reports current conditions at an aerodrome.
type WeatherSource interface {
	Current(ctx context.Context, icao string) (Weather, error)
}

// FallbackWeather is substituted when no live observation is available.
func FallbackWeather(icao string, at time.Time) Weather {
	return Weather{
		Station:      icao,
		Summary:      "unavailable",
		TemperatureC: 15,
		VisibilityKm: 10,
		Source:       WeatherFallback,
		ObservedAt:   at,
	}
}

// FlightPlan is a planned flight with its derived timing, fuel and load figures.
type FlightPlan struct {
	ID             string        `json:"id"`
	Registration   string        `json:"registration"`
	Departure      string        `json:"departure"`
	Arrival        string        `json:"arrival"`
	DepartureTime  time.Time     `json:"departure_time"`
	ArrivalTime    time.Time     `json:"arrival_time"`
	Route          string        `json:"route,omitempty"`
	CruiseAltitude int           `json:"cruise_altitude,omitempty"`
	SpeedKts       float64       `json:"speed_kts"`
	PayloadKg      *float64      `json:"payload_kg,omitempty"`
	DistanceNM     float64       `json:"distance_nm"`
	ETEMinutes     int           `json:"ete_minutes"`
	FuelLiters     float64       `json:"fuel_liters"`
	WeightBalance  WeightBalance `json:"weight_balance"`
	Weather        Weather       `json:"weather"`
	Status         Status        `json:"status"`
	CreatedBy      string        `json:"created_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// PlanRequest carries the inputs of a new flight plan.
type PlanRequest struct {
	Registration   string    `json:"registration"`
	Departure      string    `json:"departure"`
	Arrival        string    `json:"arrival"`
	DepartureTime  time.Time `json:"departure_time"`
	SpeedKts       float64   `json:"speed_kts"`
	PayloadKg      *float64  `json:"payload_kg,omitempty"`
	Route          string    `json:"route,omitempty"`
	CruiseAltitude int       `json:"cruise_altitude,omitempty"`
	CreatedBy      string    `json:"created_by,omitempty"`
}

// Patch is a partial update of a flight plan. Nil fields keep the existing value.
type Patch struct {
	DepartureTime  *time.Time `json:"departure_time,omitempty"`
	SpeedKts       *float64   `json:"speed_kts,omitempty"`
	PayloadKg      *float64   `json:"payload_kg,omitempty"`
	Route          *string    `json:"route,omitempty"`
	CruiseAltitude *int       `json:"cruise_altitude,omitempty"`
}

// Recompute reports whether applying p changes derived figures.
func (p Patch) Recompute() bool {
	return p.DepartureTime != nil || p.SpeedKts != nil || p.PayloadKg != nil
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return !p.Recompute() && p.Route == nil && p.CruiseAltitude == nil
}

// Merge returns existing with the fields set in patch applied. Derived figures are left
// untouched; callers recompute them when patch.Recompute() is true.
func Merge(existing FlightPlan, patch Patch) FlightPlan {
	out := existing
	if patch.DepartureTime != nil {
		out.DepartureTime = *patch.DepartureTime
	}
	if patch.SpeedKts != nil {
		out.SpeedKts = *patch.SpeedKts
	}
	if patch.PayloadKg != nil {
		v := *patch.PayloadKg
		out.PayloadKg = &v
	}
	if patch.Route != nil {
		out.Route = *patch.Route
	}
	if patch.CruiseAltitude != nil {
		out.CruiseAltitude = *patch.CruiseAltitude
	}
	return out
}

// Store persists flight plans. GetPlan returns (nil, nil) when the plan does not exist.
type Store interface {
	CreatePlan(ctx context.Context, p FlightPlan) error
	GetPlan(ctx context.Context, id string) (*FlightPlan, error)
	UpdatePlan(ctx context.Context, p FlightPlan) error
	ListPlans(ctx context.Context, registration string) ([]FlightPlan, error)
}
