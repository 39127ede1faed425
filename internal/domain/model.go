// Package domain holds the value types shared across the ingestion
// pipeline (§3): StationSample, WeatherIndex, BiomassSample, BiomassSummary,
// Subscription, Assessment, ScheduledJob. These are plain Go values with no
// transport or storage tags of their own — the tsdb adapter and the
// external clients each map them to their own wire/row shapes.
package domain

import "time"

// Station is one weather-station location returned by nearby_stations.
type Station struct {
	StationID string
	Lat       float64
	Lon       float64
	DistanceKm float64
}

// StationSample is one atomic weather reading (§3). Immutable once ingested.
type StationSample struct {
	StationID        string
	PlotID           string
	Instant          time.Time
	Lat              float64
	Lon              float64
	TemperatureC     float64
	FeltTemperatureC *float64
	MinTemperatureC  *float64
	MaxTemperatureC  *float64
	RainfallMM       float64
	RainfallRateMMH  *float64
	HumidityPct      float64
	PressureHPa      float64
	WindSpeedMS      float64
	WindDirectionDeg *float64
	WindGustMS       *float64
	SolarRadiation   *float64
	UVIndex          *float64
	SoilMoisturePct  *float64
	SoilTemperatureC *float64
	QualityScore     float64

	// Source supplements the distilled model (§3.1): the upstream station
	// network name, kept distinct from IngestedAt (receipt time).
	Source     string
	IngestedAt time.Time
}

// DominantStress is the §4.2 dominant-stress tag.
type DominantStress string

const (
	StressDrought  DominantStress = "drought"
	StressFlood    DominantStress = "flood"
	StressHeat     DominantStress = "heat"
	StressCombined DominantStress = "combined"
	StressNone     DominantStress = "none"
)

// SeverityLabel is the 5-level label produced from a sub-index score.
type SeverityLabel string

// WeatherIndex is the derived, per (plot, window) output of the indexing
// engine (§3, §4.2). Immutable; reprocessing produces a new row.
type WeatherIndex struct {
	PlotID            string
	WindowStart        time.Time
	WindowEnd          time.Time
	DroughtIndex       float64
	FloodIndex         float64
	HeatIndex          float64
	Composite          float64
	Dominant           DominantStress
	DroughtSeverity    SeverityLabel
	FloodSeverity      SeverityLabel
	HeatSeverity       SeverityLabel
	StationIDs         []string
	SampleCount        int
	DataQuality        float64
	Confidence         float64
	Anomaly            bool
	AnomalyScore       *float64
	HeatDegreeDays     float64
}

// BiomassQuality is the §3 derived data-quality tag for one BiomassSample.
type BiomassQuality string

const (
	BiomassQualityHigh   BiomassQuality = "high"
	BiomassQualityMedium BiomassQuality = "medium"
	BiomassQualityLow    BiomassQuality = "low"
)

// DeriveBiomassQuality applies the §3 rule: high if cloud < 0.1, medium if
// < 0.3, else low.
func DeriveBiomassQuality(cloudCover float64) BiomassQuality {
	switch {
	case cloudCover < 0.1:
		return BiomassQualityHigh
	case cloudCover < 0.3:
		return BiomassQualityMedium
	default:
		return BiomassQualityLow
	}
}

// BiomassSample is one delivered vegetation-biomass observation (§3).
type BiomassSample struct {
	PlotID          string
	SubscriptionID  string
	ObservationDate time.Time
	BiomassProxy    float64
	CloudCover      float64
	Quality         BiomassQuality
}

// BiomassSummary is the derived, per-subscription reduction (§3, §4.3).
type BiomassSummary struct {
	SubscriptionID string
	PlotID         string
	Current        float64
	Baseline       float64
	Min            float64
	Max            float64
	Trend          float64
	DeviationPct   float64
	LastUpdated    time.Time
	OverallQuality BiomassQuality
}

// SubscriptionStatus is the §4.3 lifecycle state.
type SubscriptionStatus string

const (
	SubscriptionRequested SubscriptionStatus = "requested"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionFailed    SubscriptionStatus = "failed"
)

// Terminal reports whether status is a terminal state (§3, §9 Glossary).
func (s SubscriptionStatus) Terminal() bool {
	switch s {
	case SubscriptionExpired, SubscriptionCancelled, SubscriptionFailed:
		return true
	default:
		return false
	}
}

// GeoPolygon is a field geometry: a closed ring of (lat, lon) vertices.
type GeoPolygon struct {
	Vertices [][2]float64
}

// Subscription is the satellite-delivery lifecycle record (§3).
type Subscription struct {
	SubscriptionID string
	PolicyID       string
	PlotID         string
	Geometry       GeoPolygon
	Start          time.Time
	End            time.Time
	Status         SubscriptionStatus
	ProductTag     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OutcomeRef is the write-once, externally-owned substructure supplementing
// Assessment (§3.1) — the pipeline never sets or clears these fields.
type OutcomeRef struct {
	Reference   string
	Status      string
	RecordedAt  *time.Time
}

// Assessment is the evidence record (§3, §4.4). Exclusively owned by the
// evidence bundler except for OutcomeRef.
type Assessment struct {
	AssessmentID   string
	PlotID         string
	PolicyID       string
	FarmerAddress  string
	WindowStart    time.Time
	WindowEnd      time.Time
	WindowDays     int
	EvidenceCID    string
	Outcome        OutcomeRef
	CreatedAt      time.Time
}

// ScheduledJob is one in-flight work item (§3, §4.5), persisted only when
// quarantined (terminal failure) — in-flight jobs live in the worker pool's
// in-memory queues.
type ScheduledJob struct {
	Kind      string
	Payload   map[string]string
	DedupKey  string
	Attempt   int
	Queue     string
	Status    string
	Reason    string
	CreatedAt time.Time
}
