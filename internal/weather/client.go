// Package weather fetches current aerodrome conditions from an HTTP observation service.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"flightops/internal/flightplan"
)

const (
	defaultTimeout = 5 * time.Second

	maxIdleConns    = 10
	idleConnTimeout = 90 * time.Second
)

// observation mirrors the JSON returned by the observation endpoint.
type observation struct {
	Station      string    `json:"station"`
	Summary      string    `json:"summary"`
	TemperatureC float64   `json:"temperature_c"`
	WindKts      float64   `json:"wind_kts"`
	VisibilityKm float64   `json:"visibility_km"`
	ObservedAt   time.Time `json:"observed_at"`
}

// Client reads observations from GET {baseURL}/observations/{ICAO}.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a client. apiKey is sent as a bearer token when non-empty.
func NewClient(baseURL, apiKey string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    maxIdleConns,
				IdleConnTimeout: idleConnTimeout,
			},
		},
		logger: logger,
	}
}

// Current implements flightplan.WeatherSource.
func (c *Client) Current(ctx context.Context, icao string) (flightplan.Weather, error) {
	endpoint := c.baseURL + "/observations/" + url.PathEscape(strings.ToUpper(icao))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return flightplan.Weather{}, fmt.Errorf("creating weather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return flightplan.Weather{}, fmt.Errorf("requesting weather for %s: %w", icao, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return flightplan.Weather{}, fmt.Errorf("weather request for %s failed (status %d): %s", icao, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var obs observation
	if err := json.NewDecoder(resp.Body).Decode(&obs); err != nil {
		return flightplan.Weather{}, fmt.Errorf("decoding weather response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"station": icao,
		"latency": time.Since(start).String(),
	}).Debug("Weather observation fetched")

	station := obs.Station
	if station == "" {
		station = strings.ToUpper(icao)
	}
	return flightplan.Weather{
		Station:      station,
		Summary:      obs.Summary,
		TemperatureC: obs.TemperatureC,
		WindKts:      obs.WindKts,
		VisibilityKm: obs.VisibilityKm,
		Source:       flightplan.WeatherLive,
		ObservedAt:   obs.ObservedAt,
	}, nil
}
