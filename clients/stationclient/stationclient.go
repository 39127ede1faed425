// Package stationclient is the weather-station external client (§4.1).
// Grounded on
// original_source/data-processor/src/integrations/weatherxm_client.py for
// the bearer-auth + typed-station-response shape; built on
// internal/httpretry for the common timeout/retry/rate-limit contract.
package stationclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/domain"
	"github.com/harvestguard/ingestcore/internal/httpretry"
	"github.com/harvestguard/ingestcore/internal/ratelimit"
)

// Client is the weather-station upstream client.
type Client struct {
	baseURL string
	token   string
	runner  *httpretry.Client
}

// New builds a Client. httpClient may be a *http.Client or any
// httpretry.Doer-compatible fake for tests.
func New(baseURL, token string, httpClient httpretry.Doer, limiter *ratelimit.ClientLimiter, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		runner:  httpretry.New("station", httpClient, limiter, logger),
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Permanent, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	return req, nil
}

type stationWire struct {
	StationID  string  `json:"station_id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DistanceKm float64 `json:"distance_km"`
}

// NearbyStations implements §4.1 nearby_stations: up to three nearest
// stations within radius_km; an empty result is not an error.
func (c *Client) NearbyStations(ctx context.Context, lat, lon, radiusKM float64) ([]domain.Station, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/stations/nearby", map[string]string{
		"lat": strconv.FormatFloat(lat, 'f', -1, 64),
		"lon": strconv.FormatFloat(lon, 'f', -1, 64),
		"radius_km": strconv.FormatFloat(radiusKM, 'f', -1, 64),
		"limit": "3",
	})
	if err != nil {
		return nil, err
	}
	body, _, err := c.runner.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var wire []stationWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apperr.Wrap(apperr.Permanent, "decode nearby_stations response", err)
	}
	out := make([]domain.Station, len(wire))
	for i, w := range wire {
		out[i] = domain.Station{StationID: w.StationID, Lat: w.Lat, Lon: w.Lon, DistanceKm: w.DistanceKm}
	}
	return out, nil
}

type sampleWire struct {
	StationID        string   `json:"station_id"`
	Instant          time.Time `json:"instant"`
	Lat              float64  `json:"lat"`
	Lon              float64  `json:"lon"`
	TemperatureC     float64  `json:"temperature_c"`
	FeltTemperatureC *float64 `json:"felt_temperature_c,omitempty"`
	MinTemperatureC  *float64 `json:"min_temperature_c,omitempty"`
	MaxTemperatureC  *float64 `json:"max_temperature_c,omitempty"`
	RainfallMM       float64  `json:"rainfall_mm"`
	RainfallRateMMH  *float64 `json:"rainfall_rate_mmh,omitempty"`
	HumidityPct      float64  `json:"humidity_pct"`
	PressureHPa      float64  `json:"pressure_hpa"`
	WindSpeedMS      float64  `json:"wind_speed_ms"`
	WindDirectionDeg *float64 `json:"wind_direction_deg,omitempty"`
	WindGustMS       *float64 `json:"wind_gust_ms,omitempty"`
	SolarRadiation   *float64 `json:"solar_radiation,omitempty"`
	UVIndex          *float64 `json:"uv_index,omitempty"`
	SoilMoisturePct  *float64 `json:"soil_moisture_pct,omitempty"`
	SoilTemperatureC *float64 `json:"soil_temperature_c,omitempty"`
	QualityScore     float64  `json:"quality_score"`
	Source           string   `json:"source"`
}

// StationSamples implements §4.1 station_samples; samples outside
// [start,end] are filtered client-side since upstreams are not always
// precise about their own bounds.
func (c *Client) StationSamples(ctx context.Context, stationID string, start, end time.Time) ([]domain.StationSample, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/stations/"+stationID+"/samples", map[string]string{
		"start": start.UTC().Format(time.RFC3339),
		"end":   end.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	body, _, err := c.runner.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var wire []sampleWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apperr.Wrap(apperr.Permanent, "decode station_samples response", err)
	}

	now := time.Now().UTC()
	out := make([]domain.StationSample, 0, len(wire))
	for _, w := range wire {
		if w.Instant.Before(start) || w.Instant.After(end) {
			continue
		}
		out = append(out, domain.StationSample{
			StationID: w.StationID, Instant: w.Instant, Lat: w.Lat, Lon: w.Lon,
			TemperatureC: w.TemperatureC, FeltTemperatureC: w.FeltTemperatureC,
			MinTemperatureC: w.MinTemperatureC, MaxTemperatureC: w.MaxTemperatureC,
			RainfallMM: w.RainfallMM, RainfallRateMMH: w.RainfallRateMMH,
			HumidityPct: w.HumidityPct, PressureHPa: w.PressureHPa, WindSpeedMS: w.WindSpeedMS,
			WindDirectionDeg: w.WindDirectionDeg, WindGustMS: w.WindGustMS,
			SolarRadiation: w.SolarRadiation, UVIndex: w.UVIndex,
			SoilMoisturePct: w.SoilMoisturePct, SoilTemperatureC: w.SoilTemperatureC,
			QualityScore: w.QualityScore, Source: w.Source, IngestedAt: now,
		})
	}
	return out, nil
}

// CurrentFor implements §4.1 current_for: nearest-station + last-hour
// sample. Returns (nil, nil) when no station is nearby.
func (c *Client) CurrentFor(ctx context.Context, lat, lon float64, radiusKM float64) (*domain.StationSample, error) {
	stations, err := c.NearbyStations(ctx, lat, lon, radiusKM)
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, nil
	}
	end := time.Now().UTC()
	samples, err := c.StationSamples(ctx, stations[0].StationID, end.Add(-time.Hour), end)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	latest := samples[len(samples)-1]
	return &latest, nil
}
