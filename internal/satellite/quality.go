package satellite

import "github.com/harvestguard/ingestcore/internal/domain"

// QualityWatchTripped implements the daily data-quality watch (§4.3): a
// plot is flagged when its last-7-day window has more than 3 low-quality
// samples, or mean cloud cover exceeds maxCloudCover.
func QualityWatchTripped(samples []domain.BiomassSample, maxCloudCover float64) bool {
	if len(samples) == 0 {
		return false
	}
	lowCount := 0
	cloudSum := 0.0
	for _, s := range samples {
		if s.Quality == domain.BiomassQualityLow {
			lowCount++
		}
		cloudSum += s.CloudCover
	}
	meanCloud := cloudSum / float64(len(samples))
	return lowCount > 3 || meanCloud > maxCloudCover
}
