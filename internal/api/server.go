// Package api exposes the flight operations engine over a REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"flightops/internal/apperr"
	"flightops/internal/daynight"
	"flightops/internal/flightplan"
	"flightops/internal/logbook"
	"flightops/internal/provision"
	"flightops/internal/storage"
)

// Estimator computes flight parameters.
type Estimator interface {
	Estimate(ctx context.Context, departure, arrival, registration string, speedKts float64) (flightplan.Parameters, error)
}

// Planner manages flight plans.
type Planner interface {
	Create(ctx context.Context, req flightplan.PlanRequest) (flightplan.FlightPlan, error)
	Get(ctx context.Context, id string) (flightplan.FlightPlan, error)
	List(ctx context.Context, registration string) ([]flightplan.FlightPlan, error)
	Update(ctx context.Context, id string, patch flightplan.Patch) (flightplan.FlightPlan, error)
	Transition(ctx context.Context, id string, next flightplan.Status) (flightplan.FlightPlan, error)
}

// Ledger records flights in the monthly logbooks.
type Ledger interface {
	Open(ctx context.Context, registration string, month, year int) (logbook.Logbook, error)
	Get(ctx context.Context, registration string, month, year int) (logbook.View, error)
	View(ctx context.Context, logbookID string) (logbook.View, error)
	Append(ctx context.Context, logbookID string, in logbook.EntryInput) (logbook.Entry, error)
	Delete(ctx context.Context, entryID string) error
	CrewReport(ctx context.Context, month, year int) (logbook.CrewReport, error)
}

// Provisioner creates crew accounts.
type Provisioner interface {
	ProvisionCrew(ctx context.Context, req provision.CrewRequest) (provision.Crew, error)
}

// HoursReporter rolls ledger events up per aircraft. Optional.
type HoursReporter interface {
	MonthlyHours(ctx context.Context, month, year int) ([]storage.MonthlyHours, error)
}

// Config holds configuration for the API server.
type Config struct {
	Port           int
	RequestTimeout time.Duration
}

// Services are the engine components the server exposes.
type Services struct {
	Estimator   Estimator
	Planner     Planner
	Splitter    *daynight.Splitter
	Ledger      Ledger
	Provisioner Provisioner
	Reports     HoursReporter
}

// Server provides REST API access to the engine.
type Server struct {
	svc    Services
	cfg    Config
	logger *logrus.Logger
}

// NewServer creates a new API server.
func NewServer(svc Services, cfg Config, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if svc.Splitter == nil {
		svc.Splitter = daynight.NewSplitter(nil)
	}
	return &Server{svc: svc, cfg: cfg, logger: logger}
}

// Run starts the HTTP server and shuts it down gracefully when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", srv.Addr).Info("API server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("API server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/flight-parameters", s.handleFlightParameters)
		r.Get("/day-night", s.handleDayNight)

		r.Route("/flight-plans", func(r chi.Router) {
			r.Get("/", s.handleListPlans)
			r.Post("/", s.handleCreatePlan)
			r.Get("/{id}", s.handleGetPlan)
			r.Patch("/{id}", s.handleUpdatePlan)
			r.Post("/{id}/status", s.handleTransitionPlan)
		})

		r.Post("/logbooks", s.handleOpenLogbook)
		r.Get("/logbooks/{id}", s.handleViewLogbook)
		r.Get("/logbooks/{registration}/{year}/{month}", s.handleGetLogbook)
		r.Post("/logbooks/{id}/entries", s.handleAppendEntry)
		r.Delete("/entries/{id}", s.handleDeleteEntry)

		r.Get("/crew-report/{year}/{month}", s.handleCrewReport)
		r.Get("/hours-report/{year}/{month}", s.handleHoursReport)
		r.Post("/crew", s.handleProvisionCrew)
	})

	return r
}

// requestLogger logs each request through logrus once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error. Internal errors are logged and their detail withheld.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, apperr.Message(err))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("api.decode", "invalid JSON: %v", err)
	}
	return nil
}

// periodParams reads the {year} and {month} URL parameters.
func periodParams(r *http.Request) (month, year int, err error) {
	year, err = strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return 0, 0, apperr.Invalid("api.period", "year must be a number")
	}
	month, err = strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return 0, 0, apperr.Invalid("api.period", "month must be a number")
	}
	return month, year, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func notConfigured(what string) error {
	return apperr.Unavailable("api", fmt.Errorf("%s is not configured", what))
}
