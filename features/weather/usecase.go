// Package weather wires the pure weatherengine kernel, the station client,
// and the tsdb adapter into the use cases the command/query surface and
// scheduler call (§4.2, §4.5, §4.6). Grounded on the teacher's
// usecase/registerAlarmWeatherUseCase.go layering: a thin struct holding its
// dependencies as interfaces, one method per verb.
package weather

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/config"
	"github.com/harvestguard/ingestcore/internal/domain"
	"github.com/harvestguard/ingestcore/internal/weatherengine"
)

// StationClient is the upstream weather-station surface a use case needs.
type StationClient interface {
	NearbyStations(ctx context.Context, lat, lon, radiusKM float64) ([]domain.Station, error)
	StationSamples(ctx context.Context, stationID string, start, end time.Time) ([]domain.StationSample, error)
}

// Repository is the storage surface a use case needs.
type Repository interface {
	AppendStationSamples(ctx context.Context, samples []domain.StationSample) error
	RangeStationSamples(ctx context.Context, plotID string, start, end time.Time) ([]domain.StationSample, error)
	ListEligiblePlots(ctx context.Context, sinceDays int) ([]string, error)
	InsertWeatherIndex(ctx context.Context, idx domain.WeatherIndex) error
	LatestWeatherIndexOverlapping(ctx context.Context, plotID string, start, end time.Time) (*domain.WeatherIndex, error)
}

// PlotLocator resolves a plot id to the coordinates needed to query nearby
// stations. In this core, the plot registry itself lives outside the
// ingestion pipeline (§1 scope); callers supply the lookup.
type PlotLocator interface {
	LocatePlot(ctx context.Context, plotID string) (lat, lon float64, err error)
}

// UseCase implements the weather verbs named in §4.2/§4.5/§6.
type UseCase struct {
	stations   StationClient
	repo       Repository
	locator    PlotLocator
	thresholds weatherengine.Thresholds
	radiusKM   float64
	logger     *zap.Logger
}

func NewUseCase(stations StationClient, repo Repository, locator PlotLocator, cfg config.WeatherConfig, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &UseCase{
		stations:   stations,
		repo:       repo,
		locator:    locator,
		thresholds: weatherengine.FromConfig(cfg),
		radiusKM:   cfg.StationRadiusKM,
		logger:     logger,
	}
}

// SubmitStation implements POST /v1/weather/submit: fetch nearby stations'
// recent samples for one plot and append them (§6).
func (u *UseCase) SubmitStation(ctx context.Context, plotID string) (int, error) {
	lat, lon, err := u.locator.LocatePlot(ctx, plotID)
	if err != nil {
		return 0, fmt.Errorf("weather: locate plot: %w", err)
	}

	stations, err := u.stations.NearbyStations(ctx, lat, lon, u.radiusKM)
	if err != nil {
		return 0, fmt.Errorf("weather: nearby stations: %w", err)
	}
	if len(stations) == 0 {
		return 0, apperr.New(apperr.InsufficientData, "no weather stations within radius")
	}

	end := time.Now().UTC()
	start := end.Add(-time.Hour)

	var all []domain.StationSample
	for _, station := range stations {
		samples, err := u.stations.StationSamples(ctx, station.StationID, start, end)
		if err != nil {
			return 0, fmt.Errorf("weather: station samples: %w", err)
		}
		for i := range samples {
			samples[i].PlotID = plotID
		}
		all = append(all, samples...)
	}
	if len(all) == 0 {
		return 0, nil
	}
	if err := u.repo.AppendStationSamples(ctx, all); err != nil {
		return 0, fmt.Errorf("weather: append samples: %w", err)
	}
	return len(all), nil
}

// ComputeIndices implements POST /v1/weather/indices: run the engine over a
// plot's window and persist the resulting WeatherIndex (§4.2).
func (u *UseCase) ComputeIndices(ctx context.Context, plotID string, start, end time.Time) (domain.WeatherIndex, error) {
	samples, err := u.repo.RangeStationSamples(ctx, plotID, start, end)
	if err != nil {
		return domain.WeatherIndex{}, fmt.Errorf("weather: range samples: %w", err)
	}

	idx, err := weatherengine.Compute(plotID, samples, start, end, u.thresholds)
	if err != nil {
		return domain.WeatherIndex{}, err
	}

	if err := u.repo.InsertWeatherIndex(ctx, idx); err != nil {
		return domain.WeatherIndex{}, fmt.Errorf("weather: insert index: %w", err)
	}
	if idx.Anomaly {
		u.logger.Warn("weather anomaly detected", zap.String("plot_id", plotID), zap.String("dominant", string(idx.Dominant)))
	}
	return idx, nil
}

// LatestIndex implements GET /v1/weather/indices/{plot} (§6).
func (u *UseCase) LatestIndex(ctx context.Context, plotID string, start, end time.Time) (*domain.WeatherIndex, error) {
	idx, err := u.repo.LatestWeatherIndexOverlapping(ctx, plotID, start, end)
	if err != nil {
		return nil, fmt.Errorf("weather: latest index: %w", err)
	}
	return idx, nil
}

// EligiblePlots implements the §4.5 fan-out idiom for sweep-weather and
// daily-weather-indices: plots with recent samples are the source of truth.
func (u *UseCase) EligiblePlots(ctx context.Context, sinceDays int) ([]string, error) {
	return u.repo.ListEligiblePlots(ctx, sinceDays)
}
