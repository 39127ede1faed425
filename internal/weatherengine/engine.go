// Package weatherengine is the pure numerics core (§2 "Weather indexing
// engine", §4.2): no I/O, no suspension points (§5), every function total
// over its documented domain. Grounded on
// original_source/data-processor/src/processors/weather_processor.py for
// the exact shape of each sub-index, restated as table-driven Go functions;
// gonum.org/v1/gonum/stat backs the z-score and mean/stddev calculations
// instead of hand-rolled statistics.
package weatherengine

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/config"
	"github.com/harvestguard/ingestcore/internal/domain"
)

// Thresholds is the subset of config.WeatherConfig the engine consumes,
// narrowed so the pure-function package has no dependency on env loading.
type Thresholds struct {
	DroughtThresholdMM   float64
	DroughtSevereDays    int
	FloodThresholdMM     float64
	FloodSevereMM        float64
	FloodCumulative3Day  float64
	HeatThresholdC       float64
	HeatSevereC          float64
}

// FromConfig narrows a full config.WeatherConfig to the engine's Thresholds.
func FromConfig(w config.WeatherConfig) Thresholds {
	return Thresholds{
		DroughtThresholdMM:  w.DroughtThresholdMM,
		DroughtSevereDays:   w.DroughtSevereDays,
		FloodThresholdMM:    w.FloodThresholdMM,
		FloodSevereMM:       w.FloodSevereMM,
		FloodCumulative3Day: w.FloodCumulative3Day,
		HeatThresholdC:      w.HeatThresholdC,
		HeatSevereC:         w.HeatSevereC,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dateKey(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

type dailyAgg struct {
	date       time.Time
	rainfallMM float64
	maxTempC   float64
}

func aggregateDaily(samples []domain.StationSample) []dailyAgg {
	byDate := make(map[time.Time]*dailyAgg)
	for _, s := range samples {
		day := dateKey(s.Instant)
		agg, ok := byDate[day]
		if !ok {
			agg = &dailyAgg{date: day, maxTempC: s.TemperatureC}
			byDate[day] = agg
		}
		agg.rainfallMM += s.RainfallMM
		if s.TemperatureC > agg.maxTempC {
			agg.maxTempC = s.TemperatureC
		}
	}
	out := make([]dailyAgg, 0, len(byDate))
	for _, agg := range byDate {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out
}

// longestRun returns the longest run of consecutive calendar days (no gaps)
// for which predicate holds.
func longestRun(days []dailyAgg, predicate func(dailyAgg) bool) int {
	best, current := 0, 0
	var prevDate time.Time
	for i, d := range days {
		matches := predicate(d)
		consecutiveWithPrev := i == 0 || d.date.Sub(prevDate) == 24*time.Hour
		if matches && consecutiveWithPrev {
			current++
		} else if matches {
			current = 1
		} else {
			current = 0
		}
		if current > best {
			best = current
		}
		prevDate = d.date
	}
	return best
}

// daysSinceSignificantRain counts trailing days with < 10mm up to the last day.
func daysSinceSignificantRain(days []dailyAgg) int {
	count := 0
	for i := len(days) - 1; i >= 0; i-- {
		if days[i].rainfallMM < 10 {
			count++
		} else {
			break
		}
	}
	return count
}

// cumulativeWindowMax returns the maximum k-day sliding-window sum of daily
// rainfall; fewer than k days present returns the whole-period sum (§4.2,
// §9 design flag (i): preserved as an intentional fallback, not a bug).
func cumulativeWindowMax(days []dailyAgg, k int) float64 {
	if len(days) == 0 {
		return 0
	}
	if len(days) < k {
		total := 0.0
		for _, d := range days {
			total += d.rainfallMM
		}
		return total
	}
	windowSum := 0.0
	for i := 0; i < k; i++ {
		windowSum += days[i].rainfallMM
	}
	best := windowSum
	for i := k; i < len(days); i++ {
		windowSum += days[i].rainfallMM - days[i-k].rainfallMM
		if windowSum > best {
			best = windowSum
		}
	}
	return best
}

func optionalAvg(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Compute derives a WeatherIndex from an ordered (or unordered) sample set
// covering one window (§4.2). Returns apperr.InsufficientData on an empty
// input, matching §4.2 "empty window -> InsufficientData".
func Compute(plotID string, samples []domain.StationSample, windowStart, windowEnd time.Time, th Thresholds) (domain.WeatherIndex, error) {
	if len(samples) == 0 {
		return domain.WeatherIndex{}, apperr.New(apperr.InsufficientData, "no samples in window")
	}

	days := aggregateDaily(samples)

	dryRun := longestRun(days, func(d dailyAgg) bool { return d.rainfallMM < 1 })
	wetRun := longestRun(days, func(d dailyAgg) bool { return d.rainfallMM > 10 })
	hotRun := longestRun(days, func(d dailyAgg) bool { return d.maxTempC > th.HeatThresholdC })
	sinceRain := daysSinceSignificantRain(days)

	cum3 := cumulativeWindowMax(days, 3)

	maxDailyRain := 0.0
	maxMaxTemp := days[0].maxTempC
	sumMaxTemp := 0.0
	extremeHeatDays := 0
	for _, d := range days {
		if d.rainfallMM > maxDailyRain {
			maxDailyRain = d.rainfallMM
		}
		if d.maxTempC > maxMaxTemp {
			maxMaxTemp = d.maxTempC
		}
		sumMaxTemp += d.maxTempC
		if d.maxTempC > 40 {
			extremeHeatDays++
		}
	}
	avgMaxTemp := sumMaxTemp / float64(len(days))

	var soilMoistureValues []float64
	var rainRateValues []float64
	var soilSaturationMax float64
	for _, s := range samples {
		if s.SoilMoisturePct != nil {
			soilMoistureValues = append(soilMoistureValues, *s.SoilMoisturePct)
			if *s.SoilMoisturePct > soilSaturationMax {
				soilSaturationMax = *s.SoilMoisturePct
			}
		}
		if s.RainfallRateMMH != nil {
			rainRateValues = append(rainRateValues, *s.RainfallRateMMH)
		}
	}
	avgSoilMoisture, haveSoilMoisture := optionalAvg(soilMoistureValues)
	maxRainRate := 0.0
	for _, v := range rainRateValues {
		if v > maxRainRate {
			maxRainRate = v
		}
	}

	drought := droughtSubIndex(th, maxDailyRain, dryRun, sinceRain, avgSoilMoisture, haveSoilMoisture, days)
	flood := floodSubIndex(th, maxDailyRain, cum3, maxRainRate, wetRun, soilSaturationMax)
	heat, heatDegreeDays := heatSubIndex(th, maxMaxTemp, avgMaxTemp, hotRun, extremeHeatDays, days)

	for _, v := range []float64{drought, flood, heat} {
		if v < 0 || v > 1 {
			return domain.WeatherIndex{}, apperr.New(apperr.Fatal, "sub-index escaped [0,1] after computation")
		}
	}

	composite, dominant := compositeAndDominant(drought, flood, heat)

	stationSet := map[string]struct{}{}
	qualitySum := 0.0
	var temps, rains []float64
	for _, s := range samples {
		stationSet[s.StationID] = struct{}{}
		qualitySum += s.QualityScore
		temps = append(temps, s.TemperatureC)
		if s.RainfallMM > 0 {
			rains = append(rains, s.RainfallMM)
		}
	}
	stationIDs := make([]string, 0, len(stationSet))
	for id := range stationSet {
		stationIDs = append(stationIDs, id)
	}
	sort.Strings(stationIDs)

	meanQuality := qualitySum / float64(len(samples))
	confidence := 0.7*meanQuality + 0.3*math.Min(1, float64(len(samples))/100)

	anomaly, anomalyScore := anomalyFlag(temps, rains, len(samples))

	return domain.WeatherIndex{
		PlotID:          plotID,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		DroughtIndex:    drought,
		FloodIndex:      flood,
		HeatIndex:       heat,
		Composite:       composite,
		Dominant:        dominant,
		DroughtSeverity: severityLabelDefault(drought),
		FloodSeverity:   severityLabelFlood(flood),
		HeatSeverity:    severityLabelDefault(heat),
		StationIDs:      stationIDs,
		SampleCount:     len(samples),
		DataQuality:     meanQuality,
		Confidence:      confidence,
		Anomaly:         anomaly,
		AnomalyScore:    anomalyScore,
		HeatDegreeDays:  heatDegreeDays,
	}, nil
}

func droughtSubIndex(th Thresholds, maxDailyRain float64, dryRun, sinceRain int, avgSoilMoisture float64, haveSoilMoisture bool, days []dailyAgg) float64 {
	totalRain := 0.0
	for _, d := range days {
		totalRain += d.rainfallMM
	}
	deficit := math.Max(0, th.DroughtThresholdMM-totalRain)
	deficitRatio := clamp01(deficit / 100)
	rainfallDeficit := deficitRatio * 0.4

	dryDaysComponent := 0.0
	if dryRun > th.DroughtSevereDays {
		over := float64(dryRun - th.DroughtSevereDays)
		dryDaysComponent = clamp01(over/14) * 0.3
	}

	// Scaled by the same deficit ratio as rainfallDeficit: a run with no
	// single >=10mm event but enough cumulative light rain to clear the
	// drought threshold is not "dry", so it must not also saturate this
	// component independently of the actual rainfall shortfall.
	sinceRainComponent := clamp01(float64(sinceRain)/21) * 0.2 * deficitRatio

	soilComponent := 0.0
	if haveSoilMoisture {
		switch {
		case avgSoilMoisture < 30:
			soilComponent = 0.1
		case avgSoilMoisture < 50:
			soilComponent = 0.05
		}
	}

	return clamp01(rainfallDeficit + dryDaysComponent + sinceRainComponent + soilComponent)
}

func floodSubIndex(th Thresholds, maxDailyRain, cum3, maxRainRate float64, wetRun int, soilSaturationMax float64) float64 {
	// Ramps from zero at half the configured threshold to full weight at
	// the threshold itself: reaching the configured daily/cumulative flood
	// threshold is already a genuinely heavy event, not merely the
	// half-way point of one.
	dailyComponent := clamp01((maxDailyRain-th.FloodThresholdMM*0.5)/(th.FloodThresholdMM*0.5)) * 0.3
	cumComponent := clamp01((cum3-th.FloodCumulative3Day*0.5)/(th.FloodCumulative3Day*0.5)) * 0.3

	intensityComponent := 0.0
	if maxRainRate > th.FloodSevereMM {
		over := maxRainRate - th.FloodSevereMM
		intensityComponent = clamp01(over/th.FloodSevereMM) * 0.2
	}

	wetDaysComponent := 0.0
	if wetRun >= 5 {
		wetDaysComponent = 0.1
	}

	saturationComponent := 0.0
	if soilSaturationMax > 90 {
		saturationComponent = 0.1
	}

	return clamp01(dailyComponent + cumComponent + intensityComponent + wetDaysComponent + saturationComponent)
}

func heatSubIndex(th Thresholds, maxMaxTemp, avgMaxTemp float64, hotRun, extremeHeatDays int, days []dailyAgg) (float64, float64) {
	maxComponent := 0.0
	if maxMaxTemp > th.HeatThresholdC {
		over := maxMaxTemp - th.HeatThresholdC
		maxComponent = clamp01(over/(th.HeatSevereC-th.HeatThresholdC)) * 0.3
	}

	avgComponent := 0.0
	if avgMaxTemp > 30 {
		avgComponent = clamp01((avgMaxTemp-30)/10) * 0.2
	}

	hotDaysComponent := 0.0
	if hotRun > 3 {
		hotDaysComponent = clamp01(float64(hotRun-3)/10) * 0.3
	}

	extremeComponent := clamp01(float64(extremeHeatDays)/7) * 0.2

	heatDegreeDays := 0.0
	for _, d := range days {
		if d.maxTempC > th.HeatThresholdC {
			heatDegreeDays += d.maxTempC - th.HeatThresholdC
		}
	}

	return clamp01(maxComponent + avgComponent + hotDaysComponent + extremeComponent), heatDegreeDays
}

// compositeAndDominant applies §4.2's composite rule and dominant-stress tag
// (also §8 P2).
func compositeAndDominant(drought, flood, heat float64) (float64, domain.DominantStress) {
	if drought >= 0.4 && heat >= 0.4 {
		return math.Min(1, drought+0.5*heat), domain.StressCombined
	}
	composite := math.Max(drought, math.Max(flood, heat))
	if composite <= 0.3 {
		return composite, domain.StressNone
	}
	switch composite {
	case drought:
		return composite, domain.StressDrought
	case flood:
		return composite, domain.StressFlood
	default:
		return composite, domain.StressHeat
	}
}

// severityLabelDefault maps a sub-index score to the 5-level
// none/mild/moderate/severe/extreme scale (§4.2, §9 flag (ii): the single
// fixed mapping this spec keeps).
func severityLabelDefault(score float64) domain.SeverityLabel {
	switch {
	case score < 0.2:
		return "none"
	case score < 0.4:
		return "mild"
	case score < 0.6:
		return "moderate"
	case score < 0.8:
		return "severe"
	default:
		return "extreme"
	}
}

// severityLabelFlood maps using the flood-specific scale
// none/low/moderate/high/critical.
func severityLabelFlood(score float64) domain.SeverityLabel {
	switch {
	case score < 0.2:
		return "none"
	case score < 0.4:
		return "low"
	case score < 0.6:
		return "moderate"
	case score < 0.8:
		return "high"
	default:
		return "critical"
	}
}

// anomalyFlag requires >=30 samples (§4.2); below that it is never
// anomalous. a = (#temp z>3 + #rain z>3) / #samples; anomaly = a > 0.1.
func anomalyFlag(temps, rains []float64, sampleCount int) (bool, *float64) {
	if sampleCount < 30 {
		return false, nil
	}
	tempOutliers := countZScoreOutliers(temps)
	rainOutliers := countZScoreOutliers(rains)
	a := float64(tempOutliers+rainOutliers) / float64(sampleCount)
	score := math.Min(1, a)
	return a > 0.1, &score
}

func countZScoreOutliers(values []float64) int {
	if len(values) < 2 {
		return 0
	}
	mean := stat.Mean(values, nil)
	stdDev := stat.StdDev(values, nil)
	if stdDev == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		z := math.Abs((v - mean) / stdDev)
		if z > 3 {
			count++
		}
	}
	return count
}
