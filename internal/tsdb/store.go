package tsdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/domain"
	"github.com/harvestguard/ingestcore/internal/scheduler"
)

// Store is the single adapter surface every engine and handler goes
// through; no gorm type or SQL fragment escapes it (§4.1 "hypertable
// chunking is internal... MUST NOT leak").
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wraps an already-opened gorm connection (mysql in production, sqlite
// in tests) and runs the schema migration.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	if err := db.AutoMigrate(
		&stationSampleRow{},
		&weatherIndexRow{},
		&biomassSampleRow{},
		&biomassSummaryRow{},
		&subscriptionRow{},
		&assessmentRow{},
		&scheduledJobRow{},
	); err != nil {
		return nil, fmt.Errorf("tsdb: migrate: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Ping verifies the underlying connection, used by the health checker.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- append_samples / range (StationSample) ---

// AppendStationSamples is the append-mostly write path (§4.1 append_samples);
// rows are never mutated afterward.
func (s *Store) AppendStationSamples(ctx context.Context, samples []domain.StationSample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([]stationSampleRow, len(samples))
	for i, sample := range samples {
		rows[i] = toStationSampleRow(sample)
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// RangeStationSamples is §4.1's range(table, plot_id, [start,end]); callers
// must still apply client-side filtering for upstream delivery shape, but
// the adapter itself also bounds the query.
func (s *Store) RangeStationSamples(ctx context.Context, plotID string, start, end time.Time) ([]domain.StationSample, error) {
	var rows []stationSampleRow
	err := s.db.WithContext(ctx).
		Where("plot_id = ? AND instant >= ? AND instant <= ?", plotID, start, end).
		Order("instant ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("tsdb: range station samples: %w", err)
	}
	out := make([]domain.StationSample, len(rows))
	for i, row := range rows {
		out[i] = fromStationSampleRow(row)
	}
	return out, nil
}

// ListEligiblePlots enumerates plots with at least one sample within
// sinceDays, the fan-out source of truth so restarts converge (§4.5 Fan-out
// idiom).
func (s *Store) ListEligiblePlots(ctx context.Context, sinceDays int) ([]string, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -sinceDays)
	var plots []string
	err := s.db.WithContext(ctx).Model(&stationSampleRow{}).
		Where("instant >= ?", cutoff).
		Distinct("plot_id").
		Pluck("plot_id", &plots).Error
	if err != nil {
		return nil, fmt.Errorf("tsdb: list eligible plots: %w", err)
	}
	return plots, nil
}

// --- insert_derived (WeatherIndex) ---

// InsertWeatherIndex is §4.1 insert_derived; the row is never mutated
// afterward (§3 Lifecycle).
func (s *Store) InsertWeatherIndex(ctx context.Context, idx domain.WeatherIndex) error {
	row := toWeatherIndexRow(idx)
	return s.db.WithContext(ctx).Create(&row).Error
}

// LatestWeatherIndexOverlapping is §4.4 step 2: the most recent WeatherIndex
// row whose window overlaps [start, end].
func (s *Store) LatestWeatherIndexOverlapping(ctx context.Context, plotID string, start, end time.Time) (*domain.WeatherIndex, error) {
	var row weatherIndexRow
	err := s.db.WithContext(ctx).
		Where("plot_id = ? AND window_start <= ? AND window_end >= ?", plotID, end, start).
		Order("window_end DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tsdb: latest weather index: %w", err)
	}
	idx := fromWeatherIndexRow(row)
	return &idx, nil
}

// --- BiomassSample / BiomassSummary ---

// UpsertBiomassSample implements §4.3's rolling-window persistence rule:
// key (plot, observation-date), upsert on conflict.
func (s *Store) UpsertBiomassSample(ctx context.Context, sample domain.BiomassSample) error {
	row := biomassSampleRow{
		PlotID:          sample.PlotID,
		SubscriptionID:  sample.SubscriptionID,
		ObservationDate: sample.ObservationDate,
		BiomassProxy:    sample.BiomassProxy,
		CloudCover:      sample.CloudCover,
		Quality:         string(sample.Quality),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plot_id"}, {Name: "observation_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"subscription_id", "biomass_proxy", "cloud_cover", "quality"}),
		}).
		Create(&row).Error
}

// RangeBiomassSamples returns every delivered sample for a subscription,
// ascending by date, the input to the biomass reducer (§4.3).
func (s *Store) RangeBiomassSamples(ctx context.Context, subscriptionID string) ([]domain.BiomassSample, error) {
	var rows []biomassSampleRow
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("observation_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("tsdb: range biomass samples: %w", err)
	}
	out := make([]domain.BiomassSample, len(rows))
	for i, row := range rows {
		out[i] = domain.BiomassSample{
			PlotID:          row.PlotID,
			SubscriptionID:  row.SubscriptionID,
			ObservationDate: row.ObservationDate,
			BiomassProxy:    row.BiomassProxy,
			CloudCover:      row.CloudCover,
			Quality:         domain.BiomassQuality(row.Quality),
		}
	}
	return out, nil
}

// RecentBiomassSamples returns the last n calendar days of samples for a
// plot, used by the data-quality watch (§4.3).
func (s *Store) RecentBiomassSamples(ctx context.Context, plotID string, days int) ([]domain.BiomassSample, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var rows []biomassSampleRow
	err := s.db.WithContext(ctx).
		Where("plot_id = ? AND observation_date >= ?", plotID, cutoff).
		Order("observation_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("tsdb: recent biomass samples: %w", err)
	}
	out := make([]domain.BiomassSample, len(rows))
	for i, row := range rows {
		out[i] = domain.BiomassSample{
			PlotID: row.PlotID, SubscriptionID: row.SubscriptionID, ObservationDate: row.ObservationDate,
			BiomassProxy: row.BiomassProxy, CloudCover: row.CloudCover, Quality: domain.BiomassQuality(row.Quality),
		}
	}
	return out, nil
}

// InsertBiomassSummary is insert_derived for the biomass reducer's output.
func (s *Store) InsertBiomassSummary(ctx context.Context, summary domain.BiomassSummary) error {
	row := biomassSummaryRow{
		SubscriptionID: summary.SubscriptionID,
		PlotID:         summary.PlotID,
		Current:        summary.Current,
		Baseline:       summary.Baseline,
		Min:            summary.Min,
		Max:            summary.Max,
		Trend:          summary.Trend,
		DeviationPct:   summary.DeviationPct,
		LastUpdated:    summary.LastUpdated,
		OverallQuality: string(summary.OverallQuality),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// LatestBiomassSummaryForPlot is §4.4 step 3; absence is allowed.
func (s *Store) LatestBiomassSummaryForPlot(ctx context.Context, plotID string, notBefore time.Time) (*domain.BiomassSummary, error) {
	var row biomassSummaryRow
	err := s.db.WithContext(ctx).
		Where("plot_id = ? AND last_updated >= ?", plotID, notBefore).
		Order("last_updated DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tsdb: latest biomass summary: %w", err)
	}
	summary := domain.BiomassSummary{
		SubscriptionID: row.SubscriptionID, PlotID: row.PlotID, Current: row.Current,
		Baseline: row.Baseline, Min: row.Min, Max: row.Max, Trend: row.Trend,
		DeviationPct: row.DeviationPct, LastUpdated: row.LastUpdated,
		OverallQuality: domain.BiomassQuality(row.OverallQuality),
	}
	return &summary, nil
}

// --- Subscription ---

// CreateSubscription inserts a new lifecycle record with the status set on sub.
func (s *Store) CreateSubscription(ctx context.Context, sub domain.Subscription) error {
	geomJSON, err := json.Marshal(sub.Geometry.Vertices)
	if err != nil {
		return fmt.Errorf("tsdb: marshal geometry: %w", err)
	}
	row := subscriptionRow{
		SubscriptionID: sub.SubscriptionID,
		PolicyID:       sub.PolicyID,
		PlotID:         sub.PlotID,
		GeometryJSON:   string(geomJSON),
		Start:          sub.Start,
		End:            sub.End,
		Status:         string(sub.Status),
		ProductTag:     sub.ProductTag,
		CreatedAt:      sub.CreatedAt,
		UpdatedAt:      sub.UpdatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// GetSubscription fetches one subscription by id, or nil if absent.
func (s *Store) GetSubscription(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	var row subscriptionRow
	err := s.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tsdb: get subscription: %w", err)
	}
	sub := fromSubscriptionRow(row)
	return &sub, nil
}

// ListActiveSubscriptions returns every non-terminal subscription, the
// source of truth for the status/end-date sweeps (§4.3, §4.5).
func (s *Store) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	var rows []subscriptionRow
	err := s.db.WithContext(ctx).
		Where("status IN ?", []string{string(domain.SubscriptionRequested), string(domain.SubscriptionActive)}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("tsdb: list active subscriptions: %w", err)
	}
	out := make([]domain.Subscription, len(rows))
	for i, row := range rows {
		out[i] = fromSubscriptionRow(row)
	}
	return out, nil
}

// UpdateSubscriptionStatus enforces monotone transition (§3, §7 invariant):
// a terminal subscription is left untouched (idempotent no-op re-sweep).
func (s *Store) UpdateSubscriptionStatus(ctx context.Context, subscriptionID string, next domain.SubscriptionStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row subscriptionRow
		if err := tx.Where("subscription_id = ?", subscriptionID).First(&row).Error; err != nil {
			return fmt.Errorf("tsdb: update subscription status: %w", err)
		}
		if domain.SubscriptionStatus(row.Status).Terminal() {
			return nil
		}
		return tx.Model(&row).Updates(map[string]any{
			"status":     string(next),
			"updated_at": time.Now().UTC(),
		}).Error
	})
}

// LocatePlot resolves a plot id to the centroid of its most recently
// created subscription geometry, satisfying weather.PlotLocator. The plot
// registry itself lives outside this core (§1 scope); this is the
// best-effort fallback for plots a satellite subscription already covers,
// not a general-purpose geocoder.
func (s *Store) LocatePlot(ctx context.Context, plotID string) (lat, lon float64, err error) {
	var row subscriptionRow
	dbErr := s.db.WithContext(ctx).
		Where("plot_id = ?", plotID).
		Order("created_at DESC").
		First(&row).Error
	if dbErr == gorm.ErrRecordNotFound {
		return 0, 0, apperr.New(apperr.InsufficientData, "no known coordinates for plot")
	}
	if dbErr != nil {
		return 0, 0, fmt.Errorf("tsdb: locate plot: %w", dbErr)
	}

	var vertices [][2]float64
	if err := json.Unmarshal([]byte(row.GeometryJSON), &vertices); err != nil || len(vertices) == 0 {
		return 0, 0, apperr.New(apperr.InsufficientData, "plot geometry unavailable")
	}
	var sumLat, sumLon float64
	for _, v := range vertices {
		sumLat += v[0]
		sumLon += v[1]
	}
	n := float64(len(vertices))
	return sumLat / n, sumLon / n, nil
}

// LatestSubscriptionForPlot returns the most recently created subscription
// for plotID, or nil if the plot has none. Used by the periodic evidence-
// trigger sweep to recover the policy id a plot's assessment belongs to,
// since the plot/policy registry itself lives outside this core (§1 scope).
func (s *Store) LatestSubscriptionForPlot(ctx context.Context, plotID string) (*domain.Subscription, error) {
	var row subscriptionRow
	err := s.db.WithContext(ctx).
		Where("plot_id = ?", plotID).
		Order("created_at DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tsdb: latest subscription for plot: %w", err)
	}
	sub := fromSubscriptionRow(row)
	return &sub, nil
}

// --- Assessment ---

// InsertAssessmentIfNotExists is the evidence bundler's only write path
// (§4.4 step 6, §5 "INSERT ... if not exists"). Returns created=false and
// the pre-existing row when a concurrent writer already produced this id —
// callers surface that as apperr.Conflict, not an error here.
func (s *Store) InsertAssessmentIfNotExists(ctx context.Context, a domain.Assessment) (created bool, existing *domain.Assessment, err error) {
	row := assessmentRow{
		AssessmentID:  a.AssessmentID,
		PlotID:        a.PlotID,
		PolicyID:      a.PolicyID,
		FarmerAddress: a.FarmerAddress,
		WindowStart:   a.WindowStart,
		WindowEnd:     a.WindowEnd,
		WindowDays:    a.WindowDays,
		EvidenceCID:   a.EvidenceCID,
		CreatedAt:     a.CreatedAt,
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return false, nil, fmt.Errorf("tsdb: insert assessment: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil, nil
	}
	got, getErr := s.GetAssessment(ctx, a.AssessmentID)
	if getErr != nil {
		return false, nil, getErr
	}
	return false, got, nil
}

// GetAssessment fetches one assessment, or nil if absent.
func (s *Store) GetAssessment(ctx context.Context, assessmentID string) (*domain.Assessment, error) {
	var row assessmentRow
	err := s.db.WithContext(ctx).Where("assessment_id = ?", assessmentID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tsdb: get assessment: %w", err)
	}
	a := fromAssessmentRow(row)
	return &a, nil
}

// ListAssessments returns recent assessments for a plot, paged (§6).
func (s *Store) ListAssessments(ctx context.Context, plotID string, limit, offset int) ([]domain.Assessment, error) {
	var rows []assessmentRow
	err := s.db.WithContext(ctx).
		Where("plot_id = ?", plotID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("tsdb: list assessments: %w", err)
	}
	out := make([]domain.Assessment, len(rows))
	for i, row := range rows {
		out[i] = fromAssessmentRow(row)
	}
	return out, nil
}

// AttachOutcome writes the externally-owned outcome reference exactly once
// (§6 "write-once"); a second attempt is a no-op, not an error, honouring
// §9's note that this field is owned by the external workflow.
func (s *Store) AttachOutcome(ctx context.Context, assessmentID string, outcome domain.OutcomeRef) error {
	recordedAt := outcome.RecordedAt
	if recordedAt == nil {
		now := time.Now().UTC()
		recordedAt = &now
	}
	result := s.db.WithContext(ctx).Model(&assessmentRow{}).
		Where("assessment_id = ? AND outcome_ref = ?", assessmentID, "").
		Updates(map[string]any{
			"outcome_ref":         outcome.Reference,
			"outcome_status":      outcome.Status,
			"outcome_recorded_at": recordedAt,
		})
	return result.Error
}

// PruneRetention deletes station samples older than sampleDays and biomass
// samples older than biomassDays (§6 "Retention: samples 2y, biomass 3y"),
// returning the number of rows removed from each table.
func (s *Store) PruneRetention(ctx context.Context, sampleDays, biomassDays int) (stationDeleted, biomassDeleted int64, err error) {
	stationCutoff := time.Now().UTC().AddDate(0, 0, -sampleDays)
	res := s.db.WithContext(ctx).Where("instant < ?", stationCutoff).Delete(&stationSampleRow{})
	if res.Error != nil {
		return 0, 0, fmt.Errorf("tsdb: prune station samples: %w", res.Error)
	}
	stationDeleted = res.RowsAffected

	biomassCutoff := time.Now().UTC().AddDate(0, 0, -biomassDays)
	res = s.db.WithContext(ctx).Where("observation_date < ?", biomassCutoff).Delete(&biomassSampleRow{})
	if res.Error != nil {
		return stationDeleted, 0, fmt.Errorf("tsdb: prune biomass samples: %w", res.Error)
	}
	biomassDeleted = res.RowsAffected
	return stationDeleted, biomassDeleted, nil
}

// --- ScheduledJob (quarantine) ---

// Quarantine persists a poison task (§4.5), implementing
// scheduler.QuarantineStore.
func (s *Store) Quarantine(ctx context.Context, rec scheduler.QuarantineRecord) error {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("tsdb: marshal quarantine payload: %w", err)
	}
	row := scheduledJobRow{
		Kind:        rec.Kind,
		PayloadJSON: string(payloadJSON),
		Status:      "failed",
		Reason:      rec.Reason,
		CreatedAt:   time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// --- row <-> domain conversions ---

func toStationSampleRow(sample domain.StationSample) stationSampleRow {
	return stationSampleRow{
		StationID: sample.StationID, PlotID: sample.PlotID, Instant: sample.Instant,
		Lat: sample.Lat, Lon: sample.Lon, TemperatureC: sample.TemperatureC,
		FeltTemperatureC: sample.FeltTemperatureC, MinTemperatureC: sample.MinTemperatureC, MaxTemperatureC: sample.MaxTemperatureC,
		RainfallMM: sample.RainfallMM, RainfallRateMMH: sample.RainfallRateMMH,
		HumidityPct: sample.HumidityPct, PressureHPa: sample.PressureHPa, WindSpeedMS: sample.WindSpeedMS,
		WindDirectionDeg: sample.WindDirectionDeg, WindGustMS: sample.WindGustMS,
		SolarRadiation: sample.SolarRadiation, UVIndex: sample.UVIndex,
		SoilMoisturePct: sample.SoilMoisturePct, SoilTemperatureC: sample.SoilTemperatureC,
		QualityScore: sample.QualityScore, Source: sample.Source, IngestedAt: sample.IngestedAt,
	}
}

func fromStationSampleRow(row stationSampleRow) domain.StationSample {
	return domain.StationSample{
		StationID: row.StationID, PlotID: row.PlotID, Instant: row.Instant,
		Lat: row.Lat, Lon: row.Lon, TemperatureC: row.TemperatureC,
		FeltTemperatureC: row.FeltTemperatureC, MinTemperatureC: row.MinTemperatureC, MaxTemperatureC: row.MaxTemperatureC,
		RainfallMM: row.RainfallMM, RainfallRateMMH: row.RainfallRateMMH,
		HumidityPct: row.HumidityPct, PressureHPa: row.PressureHPa, WindSpeedMS: row.WindSpeedMS,
		WindDirectionDeg: row.WindDirectionDeg, WindGustMS: row.WindGustMS,
		SolarRadiation: row.SolarRadiation, UVIndex: row.UVIndex,
		SoilMoisturePct: row.SoilMoisturePct, SoilTemperatureC: row.SoilTemperatureC,
		QualityScore: row.QualityScore, Source: row.Source, IngestedAt: row.IngestedAt,
	}
}

func toWeatherIndexRow(idx domain.WeatherIndex) weatherIndexRow {
	return weatherIndexRow{
		PlotID: idx.PlotID, WindowStart: idx.WindowStart, WindowEnd: idx.WindowEnd,
		DroughtIndex: idx.DroughtIndex, FloodIndex: idx.FloodIndex, HeatIndex: idx.HeatIndex,
		Composite: idx.Composite, Dominant: string(idx.Dominant),
		DroughtSeverity: string(idx.DroughtSeverity), FloodSeverity: string(idx.FloodSeverity), HeatSeverity: string(idx.HeatSeverity),
		StationIDsCSV: strings.Join(idx.StationIDs, ","), SampleCount: idx.SampleCount,
		DataQuality: idx.DataQuality, Confidence: idx.Confidence,
		Anomaly: idx.Anomaly, AnomalyScore: idx.AnomalyScore, HeatDegreeDays: idx.HeatDegreeDays,
		CreatedAt: time.Now().UTC(),
	}
}

func fromWeatherIndexRow(row weatherIndexRow) domain.WeatherIndex {
	var stationIDs []string
	if row.StationIDsCSV != "" {
		stationIDs = strings.Split(row.StationIDsCSV, ",")
	}
	return domain.WeatherIndex{
		PlotID: row.PlotID, WindowStart: row.WindowStart, WindowEnd: row.WindowEnd,
		DroughtIndex: row.DroughtIndex, FloodIndex: row.FloodIndex, HeatIndex: row.HeatIndex,
		Composite: row.Composite, Dominant: domain.DominantStress(row.Dominant),
		DroughtSeverity: domain.SeverityLabel(row.DroughtSeverity),
		FloodSeverity:   domain.SeverityLabel(row.FloodSeverity),
		HeatSeverity:    domain.SeverityLabel(row.HeatSeverity),
		StationIDs: stationIDs, SampleCount: row.SampleCount,
		DataQuality: row.DataQuality, Confidence: row.Confidence,
		Anomaly: row.Anomaly, AnomalyScore: row.AnomalyScore, HeatDegreeDays: row.HeatDegreeDays,
	}
}

func fromSubscriptionRow(row subscriptionRow) domain.Subscription {
	var vertices [][2]float64
	_ = json.Unmarshal([]byte(row.GeometryJSON), &vertices)
	return domain.Subscription{
		SubscriptionID: row.SubscriptionID, PolicyID: row.PolicyID, PlotID: row.PlotID,
		Geometry: domain.GeoPolygon{Vertices: vertices},
		Start:    row.Start, End: row.End, Status: domain.SubscriptionStatus(row.Status),
		ProductTag: row.ProductTag, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
}

func fromAssessmentRow(row assessmentRow) domain.Assessment {
	return domain.Assessment{
		AssessmentID: row.AssessmentID, PlotID: row.PlotID, PolicyID: row.PolicyID,
		FarmerAddress: row.FarmerAddress, WindowStart: row.WindowStart, WindowEnd: row.WindowEnd,
		WindowDays: row.WindowDays, EvidenceCID: row.EvidenceCID,
		Outcome: domain.OutcomeRef{
			Reference: row.OutcomeRef, Status: row.OutcomeStatus, RecordedAt: row.OutcomeRecordedAt,
		},
		CreatedAt: row.CreatedAt,
	}
}
