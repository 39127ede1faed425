package planet

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

type fakeSatClient struct {
	subscriptionID string
	createErr      error
	cancelErr      error
	cancelCalls    int
}

func (f *fakeSatClient) Create(context.Context, domain.GeoPolygon, time.Time, time.Time, string) (string, error) {
	return f.subscriptionID, f.createErr
}

func (f *fakeSatClient) Cancel(context.Context, string) error {
	f.cancelCalls++
	return f.cancelErr
}

type fakePlanetRepo struct {
	subs       map[string]domain.Subscription
	biomass    map[string][]domain.BiomassSample
	summaries  []domain.BiomassSummary
	bySubPlot  map[string]*domain.BiomassSummary
}

func newFakePlanetRepo() *fakePlanetRepo {
	return &fakePlanetRepo{
		subs:      map[string]domain.Subscription{},
		biomass:   map[string][]domain.BiomassSample{},
		bySubPlot: map[string]*domain.BiomassSummary{},
	}
}

func (f *fakePlanetRepo) CreateSubscription(_ context.Context, sub domain.Subscription) error {
	f.subs[sub.SubscriptionID] = sub
	return nil
}

func (f *fakePlanetRepo) GetSubscription(_ context.Context, subscriptionID string) (*domain.Subscription, error) {
	sub, ok := f.subs[subscriptionID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (f *fakePlanetRepo) UpdateSubscriptionStatus(_ context.Context, subscriptionID string, next domain.SubscriptionStatus) error {
	sub := f.subs[subscriptionID]
	sub.Status = next
	f.subs[subscriptionID] = sub
	return nil
}

func (f *fakePlanetRepo) RangeBiomassSamples(_ context.Context, subscriptionID string) ([]domain.BiomassSample, error) {
	return f.biomass[subscriptionID], nil
}

func (f *fakePlanetRepo) InsertBiomassSummary(_ context.Context, summary domain.BiomassSummary) error {
	f.summaries = append(f.summaries, summary)
	f.bySubPlot[summary.PlotID] = &summary
	return nil
}

func (f *fakePlanetRepo) LatestBiomassSummaryForPlot(_ context.Context, plotID string, _ time.Time) (*domain.BiomassSummary, error) {
	return f.bySubPlot[plotID], nil
}

func TestCreateSubscriptionPersistsActiveOnSuccess(t *testing.T) {
	repo := newFakePlanetRepo()
	client := &fakeSatClient{subscriptionID: "sub1"}
	u := NewUseCase(client, repo, config.BiomassConfig{MaxCloudCover: 0.3}, nil)

	sub, err := u.CreateSubscription(context.Background(), "p1", "pol1", domain.GeoPolygon{Vertices: [][2]float64{{0, 0}, {0, 1}, {1, 1}}}, time.Now(), time.Now().Add(24*time.Hour), "tag")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	assert.Equal(t, "sub1", repo.subs["sub1"].SubscriptionID)
}

func TestCreateSubscriptionPersistsFailedOnUpstreamError(t *testing.T) {
	repo := newFakePlanetRepo()
	client := &fakeSatClient{createErr: apperr.New(apperr.Transient, "upstream down")}
	u := NewUseCase(client, repo, config.BiomassConfig{}, nil)

	sub, err := u.CreateSubscription(context.Background(), "p1", "pol1", domain.GeoPolygon{Vertices: [][2]float64{{0, 0}, {0, 1}, {1, 1}}}, time.Now(), time.Now().Add(24*time.Hour), "tag")
	require.Error(t, err)
	assert.Equal(t, domain.SubscriptionFailed, sub.Status)
}

func TestCancelOnTerminalSubscriptionIsNoOp(t *testing.T) {
	repo := newFakePlanetRepo()
	repo.subs["sub1"] = domain.Subscription{SubscriptionID: "sub1", Status: domain.SubscriptionExpired}
	client := &fakeSatClient{}
	u := NewUseCase(client, repo, config.BiomassConfig{}, nil)

	err := u.Cancel(context.Background(), "sub1")
	require.NoError(t, err)
	assert.Equal(t, 0, client.cancelCalls)
}

func TestCancelActiveSubscriptionCallsUpstreamAndPersists(t *testing.T) {
	repo := newFakePlanetRepo()
	repo.subs["sub1"] = domain.Subscription{SubscriptionID: "sub1", Status: domain.SubscriptionActive}
	client := &fakeSatClient{}
	u := NewUseCase(client, repo, config.BiomassConfig{}, nil)

	err := u.Cancel(context.Background(), "sub1")
	require.NoError(t, err)
	assert.Equal(t, 1, client.cancelCalls)
	assert.Equal(t, domain.SubscriptionCancelled, repo.subs["sub1"].Status)
}

func TestReduceBiomassFailsInsufficientDataOnNoSamples(t *testing.T) {
	repo := newFakePlanetRepo()
	u := NewUseCase(&fakeSatClient{}, repo, config.BiomassConfig{MaxCloudCover: 0.3}, nil)

	_, err := u.ReduceBiomass(context.Background(), "sub1", "p1")
	require.Error(t, err)
	assert.Equal(t, apperr.InsufficientData, apperr.KindOf(err))
}

func TestReduceBiomassPersistsSummaryAndIsQueryableLater(t *testing.T) {
	repo := newFakePlanetRepo()
	repo.biomass["sub1"] = []domain.BiomassSample{
		{PlotID: "p1", SubscriptionID: "sub1", ObservationDate: time.Now().Add(-48 * time.Hour), BiomassProxy: 0.5, Quality: domain.BiomassQualityHigh},
		{PlotID: "p1", SubscriptionID: "sub1", ObservationDate: time.Now(), BiomassProxy: 0.6, Quality: domain.BiomassQualityHigh},
	}
	u := NewUseCase(&fakeSatClient{}, repo, config.BiomassConfig{MaxCloudCover: 0.3}, nil)

	summary, err := u.ReduceBiomass(context.Background(), "sub1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", summary.PlotID)

	latest, err := u.LatestBiomass(context.Background(), "p1", time.Time{})
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, summary.Current, latest.Current)
}
