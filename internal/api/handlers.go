package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"flightops/internal/apperr"
	"flightops/internal/flightplan"
	"flightops/internal/logbook"
	"flightops/internal/provision"
)

const dateLayout = "2006-01-02"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleFlightParameters(w http.ResponseWriter, r *http.Request) {
	if s.svc.Estimator == nil {
		s.fail(w, r, notConfigured("estimator"))
		return
	}
	q := r.URL.Query()
	speed, err := strconv.ParseFloat(q.Get("speed"), 64)
	if err != nil {
		s.fail(w, r, apperr.Invalid("api.flightParameters", "speed must be a number of knots"))
		return
	}

	params, err := s.svc.Estimator.Estimate(r.Context(), q.Get("departure"), q.Get("arrival"), q.Get("registration"), speed)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (s *Server) handleDayNight(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	split := s.svc.Splitter.Split(q.Get("departure"), q.Get("arrival"), q.Get("from"), q.Get("to"))
	writeJSON(w, http.StatusOK, split)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	if s.svc.Planner == nil {
		s.fail(w, r, notConfigured("planner"))
		return
	}
	plans, err := s.svc.Planner.List(r.Context(), r.URL.Query().Get("registration"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	if s.svc.Planner == nil {
		s.fail(w, r, notConfigured("planner"))
		return
	}
	var req flightplan.PlanRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	plan, err := s.svc.Planner.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	if s.svc.Planner == nil {
		s.fail(w, r, notConfigured("planner"))
		return
	}
	plan, err := s.svc.Planner.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	if s.svc.Planner == nil {
		s.fail(w, r, notConfigured("planner"))
		return
	}
	var patch flightplan.Patch
	if err := decodeJSON(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}

	plan, err := s.svc.Planner.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// StatusRequest is the body of a flight plan status change.
type StatusRequest struct {
	Status flightplan.Status `json:"status"`
}

func (s *Server) handleTransitionPlan(w http.ResponseWriter, r *http.Request) {
	if s.svc.Planner == nil {
		s.fail(w, r, notConfigured("planner"))
		return
	}
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	plan, err := s.svc.Planner.Transition(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// OpenLogbookRequest names the logbook to open or create.
type OpenLogbookRequest struct {
	Registration string `json:"registration"`
	Month        int    `json:"month"`
	Year         int    `json:"year"`
}

func (s *Server) handleOpenLogbook(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ledger == nil {
		s.fail(w, r, notConfigured("ledger"))
		return
	}
	var req OpenLogbookRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	lb, err := s.svc.Ledger.Open(r.Context(), req.Registration, req.Month, req.Year)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (s *Server) handleViewLogbook(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ledger == nil {
		s.fail(w, r, notConfigured("ledger"))
		return
	}
	view, err := s.svc.Ledger.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetLogbook(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ledger == nil {
		s.fail(w, r, notConfigured("ledger"))
		return
	}
	month, year, err := periodParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	view, err := s.svc.Ledger.Get(r.Context(), chi.URLParam(r, "registration"), month, year)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// EntryRequest is the body of a new logbook entry. Date accepts YYYY-MM-DD or RFC 3339.
type EntryRequest struct {
	logbook.EntryInput
	Date string `json:"date"`
}

func (req EntryRequest) input() (logbook.EntryInput, error) {
	in := req.EntryInput
	raw := strings.TrimSpace(req.Date)
	if raw == "" {
		return in, nil
	}
	layout := time.RFC3339
	if len(raw) == len(dateLayout) {
		layout = dateLayout
	}
	date, err := time.Parse(layout, raw)
	if err != nil {
		return in, apperr.Invalid("api.appendEntry", "date %q must be YYYY-MM-DD", req.Date)
	}
	in.Date = date
	return in, nil
}

func (s *Server) handleAppendEntry(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ledger == nil {
		s.fail(w, r, notConfigured("ledger"))
		return
	}
	var req EntryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	entry, err := s.svc.Ledger.Append(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ledger == nil {
		s.fail(w, r, notConfigured("ledger"))
		return
	}
	if err := s.svc.Ledger.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCrewReport(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ledger == nil {
		s.fail(w, r, notConfigured("ledger"))
		return
	}
	month, year, err := periodParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	report, err := s.svc.Ledger.CrewReport(r.Context(), month, year)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHoursReport(w http.ResponseWriter, r *http.Request) {
	if s.svc.Reports == nil {
		s.fail(w, r, notConfigured("analytics store"))
		return
	}
	month, year, err := periodParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rows, err := s.svc.Reports.MonthlyHours(r.Context(), month, year)
	if err != nil {
		s.fail(w, r, apperr.Unavailable("api.hoursReport", err))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleProvisionCrew(w http.ResponseWriter, r *http.Request) {
	if s.svc.Provisioner == nil {
		s.fail(w, r, notConfigured("crew provisioning"))
		return
	}
	var req provision.CrewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	crew, err := s.svc.Provisioner.ProvisionCrew(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, crew)
}
