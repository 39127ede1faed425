package weather

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/config"
	"github.com/harvestguard/ingestcore/internal/domain"
)

type fakeStationClient struct {
	stations []domain.Station
	samples  []domain.StationSample
}

func (f *fakeStationClient) NearbyStations(context.Context, float64, float64, float64) ([]domain.Station, error) {
	return f.stations, nil
}

func (f *fakeStationClient) StationSamples(context.Context, string, time.Time, time.Time) ([]domain.StationSample, error) {
	return f.samples, nil
}

type fakeRepo struct {
	appended []domain.StationSample
	ranged   []domain.StationSample
	indices  []domain.WeatherIndex
	plots    []string
}

func (f *fakeRepo) AppendStationSamples(_ context.Context, samples []domain.StationSample) error {
	f.appended = append(f.appended, samples...)
	return nil
}

func (f *fakeRepo) RangeStationSamples(context.Context, string, time.Time, time.Time) ([]domain.StationSample, error) {
	return f.ranged, nil
}

func (f *fakeRepo) ListEligiblePlots(context.Context, int) ([]string, error) { return f.plots, nil }

func (f *fakeRepo) InsertWeatherIndex(_ context.Context, idx domain.WeatherIndex) error {
	f.indices = append(f.indices, idx)
	return nil
}

func (f *fakeRepo) LatestWeatherIndexOverlapping(context.Context, string, time.Time, time.Time) (*domain.WeatherIndex, error) {
	if len(f.indices) == 0 {
		return nil, nil
	}
	return &f.indices[len(f.indices)-1], nil
}

type fakeLocator struct{ lat, lon float64 }

func (f *fakeLocator) LocatePlot(context.Context, string) (float64, float64, error) {
	return f.lat, f.lon, nil
}

func TestSubmitStationFailsInsufficientDataWithNoStations(t *testing.T) {
	u := NewUseCase(&fakeStationClient{}, &fakeRepo{}, &fakeLocator{}, config.WeatherConfig{StationRadiusKM: 25}, nil)

	_, err := u.SubmitStation(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, apperr.InsufficientData, apperr.KindOf(err))
}

func TestSubmitStationStoresSamplesTaggedWithPlot(t *testing.T) {
	repo := &fakeRepo{}
	stations := &fakeStationClient{
		stations: []domain.Station{{StationID: "s1"}},
		samples:  []domain.StationSample{{StationID: "s1", Instant: time.Now()}},
	}
	u := NewUseCase(stations, repo, &fakeLocator{}, config.WeatherConfig{StationRadiusKM: 25}, nil)

	count, err := u.SubmitStation(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, repo.appended, 1)
	assert.Equal(t, "p1", repo.appended[0].PlotID)
}

func TestEligiblePlotsDelegatesToRepository(t *testing.T) {
	repo := &fakeRepo{plots: []string{"p1", "p2"}}
	u := NewUseCase(&fakeStationClient{}, repo, &fakeLocator{}, config.WeatherConfig{}, nil)

	plots, err := u.EligiblePlots(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, plots)
}
