package flightplan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"flightops/internal/apperr"
	"flightops/internal/refdata"
)

// DefaultWeatherTimeout bounds a live weather lookup during planning.
const DefaultWeatherTimeout = 3 * time.Second

// Planner creates flight plans and moves them through their lifecycle.
type Planner struct {
	estimator      *Estimator
	weights        WeightBalanceEvaluator
	store          Store
	weather        WeatherSource
	weatherTimeout time.Duration
	logger         *logrus.Logger
	now            func() time.Time
}

// NewPlanner creates a planner. weather may be nil, in which case every plan carries fallback
// weather.
func NewPlanner(estimator *Estimator, weights WeightBalanceEvaluator, store Store, weather WeatherSource, logger *logrus.Logger) *Planner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Planner{
		estimator:      estimator,
		weights:        weights,
		store:          store,
		weather:        weather,
		weatherTimeout: DefaultWeatherTimeout,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Create computes and stores a new draft flight plan.
func (p *Planner) Create(ctx context.Context, req PlanRequest) (FlightPlan, error) {
	const op = "flightplan.Create"

	if req.DepartureTime.IsZero() {
		return FlightPlan{}, apperr.Invalid(op, "departure time is required")
	}
	if req.PayloadKg != nil && *req.PayloadKg < 0 {
		return FlightPlan{}, apperr.Invalid(op, "payload must not be negative")
	}
	if req.CruiseAltitude < 0 {
		return FlightPlan{}, apperr.Invalid(op, "cruise altitude must not be negative")
	}

	now := p.now()
	plan := FlightPlan{
		ID:             uuid.NewString(),
		Registration:   refdata.NormalizeRegistration(req.Registration),
		Departure:      refdata.NormalizeICAO(req.Departure),
		Arrival:        refdata.NormalizeICAO(req.Arrival),
		DepartureTime:  req.DepartureTime.UTC(),
		Route:          req.Route,
		CruiseAltitude: req.CruiseAltitude,
		SpeedKts:       req.SpeedKts,
		PayloadKg:      req.PayloadKg,
		Status:         StatusDraft,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	plan, err := p.compute(ctx, plan)
	if err != nil {
		return FlightPlan{}, err
	}
	plan.Weather = p.currentWeather(ctx, plan.Departure)

	if err := p.store.CreatePlan(ctx, plan); err != nil {
		return FlightPlan{}, apperr.Internal(op, err)
	}

	p.logger.WithFields(logrus.Fields{
		"plan":          plan.ID,
		"aircraft":      plan.Registration,
		"route":         plan.Departure + "-" + plan.Arrival,
		"ete_minutes":   plan.ETEMinutes,
		"within_limits": plan.WeightBalance.WithinLimits,
		"weather":       plan.Weather.Source,
	}).Info("Flight plan created")
	return plan, nil
}

// Get returns a stored plan.
func (p *Planner) Get(ctx context.Context, id string) (FlightPlan, error) {
	const op = "flightplan.Get"

	plan, err := p.store.GetPlan(ctx, id)
	if err != nil {
		return FlightPlan{}, apperr.Internal(op, err)
	}
	if plan == nil {
		return FlightPlan{}, apperr.NotFound(op, "flight plan %q not found", id)
	}
	return *plan, nil
}

// List returns the plans of an aircraft, or every plan when registration is empty.
func (p *Planner) List(ctx context.Context, registration string) ([]FlightPlan, error) {
	plans, err := p.store.ListPlans(ctx, refdata.NormalizeRegistration(registration))
	if err != nil {
		return nil, apperr.Internal("flightplan.List", err)
	}
	if plans == nil {
		plans = []FlightPlan{}
	}
	return plans, nil
}

// Update applies a patch to a draft or filed plan, recomputing derived figures when timing,
// speed or payload change.
func (p *Planner) Update(ctx context.Context, id string, patch Patch) (FlightPlan, error) {
	const op = "flightplan.Update"

	existing, err := p.Get(ctx, id)
	if err != nil {
		return FlightPlan{}, err
	}
	if !existing.Status.Editable() {
		return FlightPlan{}, apperr.Invalid(op, "flight plan in status %s cannot be modified", existing.Status)
	}
	if patch.Empty() {
		return existing, nil
	}
	if patch.PayloadKg != nil && *patch.PayloadKg < 0 {
		return FlightPlan{}, apperr.Invalid(op, "payload must not be negative")
	}
	if patch.CruiseAltitude != nil && *patch.CruiseAltitude < 0 {
		return FlightPlan{}, apperr.Invalid(op, "cruise altitude must not be negative")
	}

	updated := Merge(existing, patch)
	if patch.Recompute() {
		if updated, err = p.compute(ctx, updated); err != nil {
			return FlightPlan{}, err
		}
	}
	updated.UpdatedAt = p.now()

	if err := p.store.UpdatePlan(ctx, updated); err != nil {
		return FlightPlan{}, apperr.Internal(op, err)
	}
	p.logger.WithFields(logrus.Fields{"plan": id, "recomputed": patch.Recompute()}).Debug("Flight plan updated")
	return updated, nil
}

// Transition moves a plan to the next lifecycle status.
func (p *Planner) Transition(ctx context.Context, id string, next Status) (FlightPlan, error) {
	const op = "flightplan.Transition"

	if !next.Valid() {
		return FlightPlan{}, apperr.Invalid(op, "unknown status %q", next)
	}
	plan, err := p.Get(ctx, id)
	if err != nil {
		return FlightPlan{}, err
	}
	if !plan.Status.CanTransition(next) {
		return FlightPlan{}, apperr.Invalid(op, "cannot move flight plan from %s to %s", plan.Status, next)
	}
	if next == StatusApproved && !plan.WeightBalance.WithinLimits {
		return FlightPlan{}, apperr.Invalid(op, "flight plan exceeds the maximum weight of %.0f kg", plan.WeightBalance.MaxWeightKg)
	}

	prev := plan.Status
	plan.Status = next
	plan.UpdatedAt = p.now()
	if err := p.store.UpdatePlan(ctx, plan); err != nil {
		return FlightPlan{}, apperr.Internal(op, err)
	}

	p.logger.WithFields(logrus.Fields{"plan": id, "from": prev, "to": next}).Info("Flight plan status changed")
	return plan, nil
}

// compute fills the derived figures of plan from its inputs.
func (p *Planner) compute(ctx context.Context, plan FlightPlan) (FlightPlan, error) {
	params, aircraft, err := p.estimator.estimate(ctx, plan.Departure, plan.Arrival, plan.Registration, plan.SpeedKts)
	if err != nil {
		return FlightPlan{}, err
	}

	plan.DistanceNM = params.DistanceNM
	plan.ETEMinutes = params.ETEMinutes
	plan.FuelLiters = params.FuelLiters
	plan.ArrivalTime = plan.DepartureTime.Add(time.Duration(params.ETEMinutes) * time.Minute)
	plan.WeightBalance = p.weights.Evaluate(aircraft, plan.PayloadKg, params.FuelLiters)
	return plan, nil
}

func (p *Planner) currentWeather(ctx context.Context, icao string) Weather {
	if p.weather == nil {
		return FallbackWeather(icao, p.now())
	}

	ctx, cancel := context.WithTimeout(ctx, p.weatherTimeout)
	defer cancel()

	w, err := p.weather.Current(ctx, icao)
	if err != nil {
		p.logger.WithError(err).WithField("station", icao).Warn("Weather unavailable, using fallback values")
		return FallbackWeather(icao, p.now())
	}
	w.Source = WeatherLive
	return w
}
