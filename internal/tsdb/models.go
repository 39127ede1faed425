// Package tsdb is the unified storage adapter (§2, §4.1, §9 design note:
// "unify behind the adapter interface" — the relational and time-series
// surfaces are collapsed into one gorm-backed Store so callers see a single
// typed surface, never raw SQL). Backed by MySQL in production and SQLite
// in tests, grounded on the teacher's gorm usage throughout
// features/weather/repository.
package tsdb

import "time"

// stationSampleRow is the append-mostly samples table (§6 Persisted state).
type stationSampleRow struct {
	ID               uint `gorm:"primaryKey"`
	StationID        string  `gorm:"index:idx_station_instant"`
	PlotID           string  `gorm:"index:idx_plot_instant"`
	Instant          time.Time `gorm:"index:idx_plot_instant;index:idx_station_instant"`
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
	Source           string
	IngestedAt       time.Time
}

func (stationSampleRow) TableName() string { return "station_samples" }

// weatherIndexRow is the derived weather_indices table (insert-only).
type weatherIndexRow struct {
	ID              uint `gorm:"primaryKey"`
	PlotID          string `gorm:"index:idx_weather_plot_window"`
	WindowStart     time.Time `gorm:"index:idx_weather_plot_window"`
	WindowEnd       time.Time
	DroughtIndex    float64
	FloodIndex      float64
	HeatIndex       float64
	Composite       float64
	Dominant        string
	DroughtSeverity string
	FloodSeverity   string
	HeatSeverity    string
	StationIDsCSV   string
	SampleCount     int
	DataQuality     float64
	Confidence      float64
	Anomaly         bool
	AnomalyScore    *float64
	HeatDegreeDays  float64
	CreatedAt       time.Time
}

func (weatherIndexRow) TableName() string { return "weather_indices" }

// biomassSampleRow is the satellite_images table in spec terms (one row per
// delivered observation), upserted on (plot, observation_date) per §4.3's
// rolling-window persistence rule.
type biomassSampleRow struct {
	ID              uint   `gorm:"primaryKey"`
	PlotID          string `gorm:"uniqueIndex:idx_plot_obs_date"`
	SubscriptionID  string `gorm:"index"`
	ObservationDate time.Time `gorm:"uniqueIndex:idx_plot_obs_date"`
	BiomassProxy    float64
	CloudCover      float64
	Quality         string
}

func (biomassSampleRow) TableName() string { return "satellite_images" }

// biomassSummaryRow is the derived, per-subscription reduction.
type biomassSummaryRow struct {
	ID             uint `gorm:"primaryKey"`
	SubscriptionID string `gorm:"index"`
	PlotID         string `gorm:"index"`
	Current        float64
	Baseline       float64
	Min            float64
	Max            float64
	Trend          float64
	DeviationPct   float64
	LastUpdated    time.Time
	OverallQuality string
	CreatedAt      time.Time
}

func (biomassSummaryRow) TableName() string { return "biomass_summaries" }

// subscriptionRow is the lifecycle record; status is monotone (§3, §5).
type subscriptionRow struct {
	SubscriptionID string `gorm:"primaryKey"`
	PolicyID       string `gorm:"index"`
	PlotID         string `gorm:"index"`
	GeometryJSON   string
	Start          time.Time
	End            time.Time
	Status         string
	ProductTag     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (subscriptionRow) TableName() string { return "subscriptions" }

// assessmentRow is the damage_assessments table; insert-only except
// outcome_ref (write-once, §6 Persisted state).
type assessmentRow struct {
	AssessmentID      string `gorm:"primaryKey"`
	PlotID            string `gorm:"index"`
	PolicyID          string
	FarmerAddress     string
	WindowStart       time.Time
	WindowEnd         time.Time
	WindowDays        int
	EvidenceCID       string
	OutcomeRef        string
	OutcomeStatus     string
	OutcomeRecordedAt *time.Time
	CreatedAt         time.Time `gorm:"index"`
}

func (assessmentRow) TableName() string { return "damage_assessments" }

// scheduledJobRow persists only quarantined (exhausted-retry) jobs (§4.5).
type scheduledJobRow struct {
	ID        uint `gorm:"primaryKey"`
	Kind      string `gorm:"index"`
	PayloadJSON string
	Status    string
	Reason    string
	CreatedAt time.Time
}

func (scheduledJobRow) TableName() string { return "scheduled_jobs" }
