package evidence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/domain"
	"github.com/harvestguard/ingestcore/internal/metrics"
)

// CIDStore is the publish surface the bundler needs from the
// content-addressed store client (§4.1).
type CIDStore interface {
	PutJSON(ctx context.Context, object any, metadata map[string]string) (cid string, err error)
}

// WeatherSource resolves §4.4 step 2: the most recent WeatherIndex
// overlapping the window.
type WeatherSource interface {
	LatestWeatherIndexOverlapping(ctx context.Context, plotID string, start, end time.Time) (*domain.WeatherIndex, error)
}

// BiomassSource resolves §4.4 step 3: biomass is optional.
type BiomassSource interface {
	LatestBiomassSummaryForPlot(ctx context.Context, plotID string, notBefore time.Time) (*domain.BiomassSummary, error)
}

// AssessmentStore is the bundler's sole write path (§4.4: "the only writer
// to the assessment table").
type AssessmentStore interface {
	InsertAssessmentIfNotExists(ctx context.Context, a domain.Assessment) (created bool, existing *domain.Assessment, err error)
}

// Bundler composes an evidence document, publishes it, and records an
// Assessment (§4.4).
type Bundler struct {
	weather   WeatherSource
	biomass   BiomassSource
	cidStore  CIDStore
	assessments AssessmentStore
	logger    *zap.Logger
}

func New(weather WeatherSource, biomass BiomassSource, cidStore CIDStore, assessments AssessmentStore, logger *zap.Logger) *Bundler {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Bundler{weather: weather, biomass: biomass, cidStore: cidStore, assessments: assessments, logger: logger}
}

// Request is the bundler's input (§4.4 preamble).
type Request struct {
	PlotID        string
	PolicyID      string
	FarmerAddress string
	WindowDays    int
	Now           time.Time
}

// Assemble runs the full bundler pipeline (§4.4 steps 1-6). A duplicate
// assessment id from a concurrent writer is surfaced as apperr.Conflict,
// matching §7 ("the current task no-ops") and §8 P5's round-trip property.
func (b *Bundler) Assemble(ctx context.Context, req Request) (domain.Assessment, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	start := now.AddDate(0, 0, -req.WindowDays)
	end := now

	idx, err := b.weather.LatestWeatherIndexOverlapping(ctx, req.PlotID, start, end)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("evidence: load weather index: %w", err)
	}
	if idx == nil {
		return domain.Assessment{}, apperr.New(apperr.InsufficientData, "no weather index overlapping window")
	}

	var biomassSummary *domain.BiomassSummary
	if b.biomass != nil {
		biomassSummary, err = b.biomass.LatestBiomassSummaryForPlot(ctx, req.PlotID, start)
		if err != nil {
			return domain.Assessment{}, fmt.Errorf("evidence: load biomass summary: %w", err)
		}
	}

	doc := BuildDocument(req.PlotID, req.PolicyID, start, end, *idx, biomassSummary)

	assessmentID, err := AssessmentID(req.PlotID, req.PolicyID, start, end)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("evidence: derive assessment id: %w", err)
	}

	cid, err := b.cidStore.PutJSON(ctx, doc, map[string]string{
		"plot_id":   req.PlotID,
		"policy_id": req.PolicyID,
	})
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("evidence: publish document: %w", err)
	}

	assessment := domain.Assessment{
		AssessmentID:  assessmentID,
		PlotID:        req.PlotID,
		PolicyID:      req.PolicyID,
		FarmerAddress: req.FarmerAddress,
		WindowStart:   start,
		WindowEnd:     end,
		WindowDays:    req.WindowDays,
		EvidenceCID:   cid,
		CreatedAt:     now,
	}

	created, existing, err := b.assessments.InsertAssessmentIfNotExists(ctx, assessment)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("evidence: insert assessment: %w", err)
	}
	if !created {
		metrics.RecordEvidenceConflict()
		return *existing, apperr.New(apperr.Conflict, "assessment already recorded for this window")
	}

	metrics.RecordEvidencePublished()
	return assessment, nil
}
