package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"flightops/internal/api"
	"flightops/internal/daynight"
	"flightops/internal/events"
	"flightops/internal/flightplan"
	"flightops/internal/logbook"
	"flightops/internal/provision"
	"flightops/internal/refdata"
	"flightops/internal/storage"
	"flightops/internal/weather"
)

// NewLogger builds the process logger. format is "json" or "text".
func NewLogger(verbose bool, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Application holds the wired engine components.
type Application struct {
	config Config
	logger *logrus.Logger

	backend   storage.Backend
	analytics *storage.ClickHouseDB
	nats      *events.NATSPublisher
	redis     *redis.Client

	Estimator *flightplan.Estimator
	Planner   *flightplan.Planner
	Splitter  *daynight.Splitter
	Ledger    *logbook.Ledger
	Crew      *provision.Service
}

// NewApplication opens the storage backend and wires every component. Optional collaborators
// (Redis, NATS, ClickHouse, weather) that fail to connect are logged and left out.
func NewApplication(ctx context.Context, config Config, logger *logrus.Logger) (*Application, error) {
	if logger == nil {
		logger = NewLogger(config.Verbose, config.LogFormat)
	}

	backend, err := storage.Open(ctx, config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	app := &Application{config: config, logger: logger, backend: backend}

	// The memory backend starts empty every time.
	if config.SeedOnStart || config.Storage.Backend == storage.BackendMemory || config.Storage.Backend == "" {
		if _, err := app.Seed(ctx); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	if err := app.initializeComponents(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"version": Version,
		"store":   config.Storage.Backend,
	}).Info("Flight operations engine ready")
	return app, nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents(ctx context.Context) error {
	sunsets, err := app.sunsetSource(ctx)
	if err != nil {
		return err
	}
	app.Splitter = daynight.NewSplitter(sunsets).WithMaxSpan(app.config.MaxSpanMinutes)

	var aerodromes refdata.AerodromeResolver = app.backend
	if app.config.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: app.config.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := app.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			app.logger.WithError(err).WithField("addr", app.config.RedisAddr).Warn("Redis unavailable, aerodrome cache disabled")
			_ = app.redis.Close()
			app.redis = nil
		} else {
			aerodromes = refdata.NewCachedAerodromes(app.backend, refdata.NewRedisClient(app.redis), app.config.CacheTTL, app.logger)
		}
	}

	app.Estimator = flightplan.NewEstimator(aerodromes, app.backend)

	var source flightplan.WeatherSource
	if app.config.WeatherURL != "" {
		source = weather.NewClient(app.config.WeatherURL, app.config.WeatherAPIKey, app.logger)
	}
	app.Planner = flightplan.NewPlanner(app.Estimator, flightplan.NewWeightBalanceEvaluator(app.config.MaxWeightKg),
		app.backend, source, app.logger)

	app.Ledger = logbook.NewLedger(app.backend, app.backend, app.Splitter, logbook.DefaultAllowanceRules(), app.logger)
	if pub := app.publishers(ctx); len(pub) > 0 {
		app.Ledger.SetPublisher(pub)
	}

	app.Crew = provision.NewService(app.backend, app.logger)
	return nil
}

// sunsetSource returns the aerodrome sunsets the day/night splitter reads. SQL backends are
// loaded into a catalog once; the splitter never touches storage per call.
func (app *Application) sunsetSource(ctx context.Context) (daynight.SunsetSource, error) {
	if src, ok := app.backend.(daynight.SunsetSource); ok {
		return src, nil
	}

	list, err := app.backend.ListAerodromes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aerodromes: %w", err)
	}
	catalog := refdata.NewCatalog()
	for _, a := range list {
		if _, err := catalog.SeedAerodrome(ctx, a); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// publishers connects the configured ledger event sinks.
func (app *Application) publishers(ctx context.Context) events.Multi {
	var out events.Multi

	if app.config.NATSURL != "" {
		p, err := events.ConnectNATS(app.config.NATSURL, app.config.NATSSubjectPrefix, app.logger)
		if err != nil {
			app.logger.WithError(err).Warn("NATS unavailable, ledger events will not be published")
		} else {
			app.nats = p
			out = append(out, p)
		}
	}

	if app.config.ClickHouseEnabled {
		ch, err := storage.OpenClickHouse(ctx, app.config.Storage.ClickHouse)
		if err == nil {
			if err = ch.CreateSchema(ctx); err != nil {
				_ = ch.Close()
			}
		}
		if err != nil {
			app.logger.WithError(err).Warn("ClickHouse unavailable, ledger events will not be recorded")
		} else {
			app.analytics = ch
			out = append(out, ch)
		}
	}

	return out
}

// Seed writes the default reference data into the backend.
func (app *Application) Seed(ctx context.Context) (refdata.SeedResult, error) {
	res, err := refdata.Seed(ctx, app.backend, refdata.DefaultDataset(), app.logger)
	if err != nil {
		return res, fmt.Errorf("failed to seed reference data: %w", err)
	}
	return res, nil
}

// Server returns the HTTP server exposing the engine.
func (app *Application) Server() *api.Server {
	svc := api.Services{
		Estimator:   app.Estimator,
		Planner:     app.Planner,
		Splitter:    app.Splitter,
		Ledger:      app.Ledger,
		Provisioner: app.Crew,
	}
	if app.analytics != nil {
		svc.Reports = app.analytics
	}
	return api.NewServer(svc, api.Config{Port: app.config.Port, RequestTimeout: app.config.RequestTimeout}, app.logger)
}

// Serve runs the HTTP server until ctx is cancelled.
func (app *Application) Serve(ctx context.Context) error {
	return app.Server().Run(ctx)
}

// Close releases every connection the application holds.
func (app *Application) Close() error {
	var errs []error
	if app.nats != nil {
		if err := app.nats.Close(); err != nil {
			errs = append(errs, fmt.Errorf("nats: %w", err))
		}
	}
	if app.analytics != nil {
		if err := app.analytics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if app.backend != nil {
		if err := app.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
