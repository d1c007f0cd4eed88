package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"flightops/internal/daynight"
	"flightops/internal/events"
	"flightops/internal/flightplan"
	"flightops/internal/storage"
)

// Default configuration constants
const (
	DefaultPort           = 8080
	DefaultRequestTimeout = 30 * time.Second
	DefaultCacheTTL       = 24 * time.Hour
	DefaultLogFormat      = "text"
)

// Config holds application configuration
type Config struct {
	Port           int
	RequestTimeout time.Duration

	Storage     storage.Config
	SeedOnStart bool

	// Optional collaborators; empty disables them.
	RedisAddr         string
	CacheTTL          time.Duration
	NATSURL           string
	NATSSubjectPrefix string
	ClickHouseEnabled bool
	WeatherURL        string
	WeatherAPIKey     string

	MaxWeightKg    float64
	MaxSpanMinutes int

	Verbose   bool
	LogFormat string
}

// DefaultConfig returns the configuration used when nothing is set in the environment.
func DefaultConfig() Config {
	return Config{
		Port:              DefaultPort,
		RequestTimeout:    DefaultRequestTimeout,
		Storage:           storage.DefaultConfig(),
		CacheTTL:          DefaultCacheTTL,
		NATSSubjectPrefix: events.DefaultSubjectPrefix,
		MaxWeightKg:       flightplan.DefaultMaxWeightKg,
		MaxSpanMinutes:    daynight.DefaultMaxSpanMinutes,
		LogFormat:         DefaultLogFormat,
	}
}

// LoadConfig reads the configuration from the environment, after loading a .env file from the
// working directory when one exists.
func LoadConfig() Config {
	_ = godotenv.Load()

	d := DefaultConfig()
	return Config{
		Port:           envOrDefaultInt("FLIGHTOPS_PORT", d.Port),
		RequestTimeout: envOrDefaultDuration("FLIGHTOPS_REQUEST_TIMEOUT", d.RequestTimeout),

		Storage: storage.Config{
			Backend:    envOrDefault("FLIGHTOPS_STORE", d.Storage.Backend),
			SQLitePath: envOrDefault("FLIGHTOPS_SQLITE_PATH", d.Storage.SQLitePath),
			Postgres: storage.PostgresConfig{
				Host:     envOrDefault("POSTGRES_HOST", d.Storage.Postgres.Host),
				Port:     envOrDefaultInt("POSTGRES_PORT", d.Storage.Postgres.Port),
				Database: envOrDefault("POSTGRES_DATABASE", d.Storage.Postgres.Database),
				User:     envOrDefault("POSTGRES_USER", d.Storage.Postgres.User),
				Password: envOrDefault("POSTGRES_PASSWORD", d.Storage.Postgres.Password),
			},
			ClickHouse: storage.ClickHouseConfig{
				Host:     envOrDefault("CLICKHOUSE_HOST", d.Storage.ClickHouse.Host),
				Port:     envOrDefaultInt("CLICKHOUSE_PORT", d.Storage.ClickHouse.Port),
				Database: envOrDefault("CLICKHOUSE_DATABASE", d.Storage.ClickHouse.Database),
				User:     envOrDefault("CLICKHOUSE_USER", d.Storage.ClickHouse.User),
				Password: envOrDefault("CLICKHOUSE_PASSWORD", d.Storage.ClickHouse.Password),
			},
		},
		SeedOnStart: envOrDefaultBool("FLIGHTOPS_SEED", d.SeedOnStart),

		RedisAddr:         envOrDefault("REDIS_ADDR", d.RedisAddr),
		CacheTTL:          envOrDefaultDuration("FLIGHTOPS_CACHE_TTL", d.CacheTTL),
		NATSURL:           envOrDefault("NATS_URL", d.NATSURL),
		NATSSubjectPrefix: envOrDefault("NATS_SUBJECT_PREFIX", d.NATSSubjectPrefix),
		ClickHouseEnabled: envOrDefaultBool("CLICKHOUSE_ENABLED", d.ClickHouseEnabled),
		WeatherURL:        envOrDefault("WEATHER_URL", d.WeatherURL),
		WeatherAPIKey:     envOrDefault("WEATHER_API_KEY", d.WeatherAPIKey),

		MaxWeightKg:    envOrDefaultFloat("FLIGHTOPS_MAX_WEIGHT_KG", d.MaxWeightKg),
		MaxSpanMinutes: envOrDefaultInt("FLIGHTOPS_MAX_SPAN_MINUTES", d.MaxSpanMinutes),

		Verbose:   envOrDefaultBool("FLIGHTOPS_VERBOSE", d.Verbose),
		LogFormat: envOrDefault("FLIGHTOPS_LOG_FORMAT", d.LogFormat),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
