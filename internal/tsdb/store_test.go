package tsdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/harvestguard/ingestcore/internal/domain"
	"github.com/harvestguard/ingestcore/internal/scheduler"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	store, err := New(db, nil)
	require.NoError(t, err)
	return store
}

func TestAppendAndRangeStationSamples(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	samples := []domain.StationSample{
		{StationID: "s1", PlotID: "p1", Instant: base, TemperatureC: 20, RainfallMM: 1, QualityScore: 0.9},
		{StationID: "s1", PlotID: "p1", Instant: base.Add(25 * time.Hour), TemperatureC: 22, RainfallMM: 2, QualityScore: 0.9},
		{StationID: "s1", PlotID: "p2", Instant: base, TemperatureC: 18, RainfallMM: 0, QualityScore: 0.9},
	}
	require.NoError(t, store.AppendStationSamples(ctx, samples))

	got, err := store.RangeStationSamples(ctx, "p1", base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].PlotID)
}

func TestListEligiblePlots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.AppendStationSamples(ctx, []domain.StationSample{
		{StationID: "s1", PlotID: "fresh", Instant: now.Add(-time.Hour), TemperatureC: 20},
		{StationID: "s1", PlotID: "stale", Instant: now.AddDate(0, 0, -60), TemperatureC: 20},
	}))

	plots, err := store.ListEligiblePlots(ctx, 30)
	require.NoError(t, err)
	assert.Contains(t, plots, "fresh")
	assert.NotContains(t, plots, "stale")
}

func TestLatestWeatherIndexOverlapping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	require.NoError(t, store.InsertWeatherIndex(ctx, domain.WeatherIndex{
		PlotID: "p1", WindowStart: start, WindowEnd: end, Composite: 0.5, Dominant: domain.StressNone,
	}))

	idx, err := store.LatestWeatherIndexOverlapping(ctx, "p1", start.AddDate(0, 0, 10), start.AddDate(0, 0, 20))
	require.NoError(t, err)
	require.NotNil(t, idx)
	assert.Equal(t, 0.5, idx.Composite)

	none, err := store.LatestWeatherIndexOverlapping(ctx, "p1", end.AddDate(0, 1, 0), end.AddDate(0, 2, 0))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSubscriptionStatusIsMonotone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateSubscription(ctx, domain.Subscription{
		SubscriptionID: "sub-1", PolicyID: "pol-1", PlotID: "p1",
		Start: now, End: now.AddDate(0, 1, 0), Status: domain.SubscriptionRequested,
		CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, store.UpdateSubscriptionStatus(ctx, "sub-1", domain.SubscriptionActive))
	sub, err := store.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)

	require.NoError(t, store.UpdateSubscriptionStatus(ctx, "sub-1", domain.SubscriptionCancelled))
	sub, err = store.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionCancelled, sub.Status)

	require.NoError(t, store.UpdateSubscriptionStatus(ctx, "sub-1", domain.SubscriptionExpired))
	sub, err = store.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionCancelled, sub.Status, "a terminal status must never be overwritten")
}

func TestInsertAssessmentIfNotExistsIsConflictSafe(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	a := domain.Assessment{
		AssessmentID: "a1", PlotID: "p1", PolicyID: "pol1", FarmerAddress: "0xabc",
		WindowStart: now.AddDate(0, 0, -30), WindowEnd: now, WindowDays: 30,
		EvidenceCID: "sha256:deadbeef", CreatedAt: now,
	}

	created, existing, err := store.InsertAssessmentIfNotExists(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, existing)

	created, existing, err = store.InsertAssessmentIfNotExists(ctx, a)
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, existing)
	assert.Equal(t, "a1", existing.AssessmentID)
}

func TestAttachOutcomeIsWriteOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.AppendStationSamples(ctx, nil))

	_, _, err := store.InsertAssessmentIfNotExists(ctx, domain.Assessment{
		AssessmentID: "a2", PlotID: "p1", PolicyID: "pol1", FarmerAddress: "0xabc",
		WindowStart: now.AddDate(0, 0, -30), WindowEnd: now, WindowDays: 30,
		EvidenceCID: "sha256:deadbeef", CreatedAt: now,
	})
	require.NoError(t, err)

	require.NoError(t, store.AttachOutcome(ctx, "a2", domain.OutcomeRef{Reference: "ref-1", Status: "paid"}))
	require.NoError(t, store.AttachOutcome(ctx, "a2", domain.OutcomeRef{Reference: "ref-2", Status: "denied"}))

	got, err := store.GetAssessment(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", got.Outcome.Reference, "a second outcome write must be a no-op")
}

func TestQuarantine(t *testing.T) {
	store := newTestStore(t)
	err := store.Quarantine(context.Background(), scheduler.QuarantineRecord{
		Kind: "sweep-weather", Payload: map[string]string{"plot_id": "p1"}, Reason: "upstream unavailable",
	})
	require.NoError(t, err)
}
