package satellite

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/domain"
)

// qualityScore maps a BiomassQuality tag to the §4.3 averaging scale.
func qualityScore(q domain.BiomassQuality) float64 {
	switch q {
	case domain.BiomassQualityHigh:
		return 3
	case domain.BiomassQualityMedium:
		return 2
	default:
		return 1
	}
}

// bucketQuality maps an averaged quality score back to a tag, bucketed at
// 2.5 and 1.5 (§4.3).
func bucketQuality(avg float64) domain.BiomassQuality {
	switch {
	case avg >= 2.5:
		return domain.BiomassQualityHigh
	case avg >= 1.5:
		return domain.BiomassQualityMedium
	default:
		return domain.BiomassQualityLow
	}
}

// Reduce computes a BiomassSummary from the full set of delivered samples
// for one subscription (§4.3). Returns apperr.InsufficientData when there
// are no samples at all.
func Reduce(subscriptionID, plotID string, samples []domain.BiomassSample) (domain.BiomassSummary, error) {
	if len(samples) == 0 {
		return domain.BiomassSummary{}, apperr.New(apperr.InsufficientData, "no biomass samples delivered")
	}

	sorted := make([]domain.BiomassSample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ObservationDate.Before(sorted[j].ObservationDate) })

	current := sorted[len(sorted)-1].BiomassProxy
	min, max := sorted[0].BiomassProxy, sorted[0].BiomassProxy
	for _, s := range sorted {
		if s.BiomassProxy < min {
			min = s.BiomassProxy
		}
		if s.BiomassProxy > max {
			max = s.BiomassProxy
		}
	}

	k := 5
	if len(sorted) < k {
		k = len(sorted)
	}
	baselineSum := 0.0
	for i := 0; i < k; i++ {
		baselineSum += sorted[i].BiomassProxy
	}
	baseline := baselineSum / float64(k)

	trend := trendSlope(sorted)

	deviationPct := 0.0
	if baseline != 0 {
		deviationPct = (baseline - current) / baseline * 100
	}

	qualitySum := 0.0
	for _, s := range sorted {
		qualitySum += qualityScore(s.Quality)
	}
	avgQuality := qualitySum / float64(len(sorted))

	return domain.BiomassSummary{
		SubscriptionID: subscriptionID,
		PlotID:         plotID,
		Current:        current,
		Baseline:       baseline,
		Min:            min,
		Max:            max,
		Trend:          trend,
		DeviationPct:   deviationPct,
		LastUpdated:    sorted[len(sorted)-1].ObservationDate,
		OverallQuality: bucketQuality(avgQuality),
	}, nil
}

// trendSlope computes the closed-form linear-regression slope of value
// against index (x = 0..n-1), then normalises per §4.3: clamp(10*slope, -1,
// +1).
func trendSlope(sorted []domain.BiomassSample) float64 {
	if len(sorted) < 2 {
		return 0
	}
	xs := make([]float64, len(sorted))
	ys := make([]float64, len(sorted))
	for i, s := range sorted {
		xs[i] = float64(i)
		ys[i] = s.BiomassProxy
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	normalised := 10 * slope
	return math.Max(-1, math.Min(1, normalised))
}
