package satellite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/domain"
)

func TestReduceFailsInsufficientDataOnEmpty(t *testing.T) {
	_, err := Reduce("sub-1", "p1", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.InsufficientData, apperr.KindOf(err))
}

func TestReduceBiomassScenario(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := []float64{0.80, 0.78, 0.76, 0.70, 0.60}
	samples := make([]domain.BiomassSample, len(values))
	for i, v := range values {
		samples[i] = domain.BiomassSample{
			PlotID: "p1", SubscriptionID: "sub-1",
			ObservationDate: start.Add(time.Duration(i) * 24 * time.Hour),
			BiomassProxy:    v,
			CloudCover:      0.05,
			Quality:         domain.BiomassQualityHigh,
		}
	}

	summary, err := Reduce("sub-1", "p1", samples)
	require.NoError(t, err)

	assert.InDelta(t, 0.60, summary.Current, 1e-9)
	assert.InDelta(t, 0.728, summary.Baseline, 1e-9)
	assert.Less(t, summary.Trend, 0.0)
	assert.InDelta(t, 17.6, summary.DeviationPct, 0.5)
	assert.Equal(t, domain.BiomassQualityHigh, summary.OverallQuality)
}

func TestReduceDeviationIsZeroWhenBaselineIsZero(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := []domain.BiomassSample{
		{PlotID: "p1", SubscriptionID: "sub-1", ObservationDate: start, BiomassProxy: 0, Quality: domain.BiomassQualityMedium},
	}
	summary, err := Reduce("sub-1", "p1", samples)
	require.NoError(t, err)
	assert.Equal(t, 0.0, summary.DeviationPct)
}

func TestQualityWatch(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lowQuality := make([]domain.BiomassSample, 4)
	for i := range lowQuality {
		lowQuality[i] = domain.BiomassSample{
			ObservationDate: start.Add(time.Duration(i) * 24 * time.Hour),
			Quality:         domain.BiomassQualityLow,
			CloudCover:      0.5,
		}
	}
	assert.True(t, QualityWatchTripped(lowQuality, 0.3))

	clean := []domain.BiomassSample{{Quality: domain.BiomassQualityHigh, CloudCover: 0.05}}
	assert.False(t, QualityWatchTripped(clean, 0.3))
}
