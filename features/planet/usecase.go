// Package planet wires the satellite subscription lifecycle and biomass
// reducer into the create/status/cancel/biomass verbs (§4.3, §6), following
// the same thin-usecase layering as features/weather.
package planet

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/config"
	"github.com/harvestguard/ingestcore/internal/domain"
	"github.com/harvestguard/ingestcore/internal/satellite"
)

// SatClient is the upstream subscription surface a use case needs (§4.1).
type SatClient interface {
	Create(ctx context.Context, geometry domain.GeoPolygon, start, end time.Time, productTag string) (subscriptionID string, err error)
	Cancel(ctx context.Context, subscriptionID string) error
}

// Repository is the storage surface a use case needs.
type Repository interface {
	CreateSubscription(ctx context.Context, sub domain.Subscription) error
	GetSubscription(ctx context.Context, subscriptionID string) (*domain.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, subscriptionID string, next domain.SubscriptionStatus) error
	RangeBiomassSamples(ctx context.Context, subscriptionID string) ([]domain.BiomassSample, error)
	InsertBiomassSummary(ctx context.Context, summary domain.BiomassSummary) error
	LatestBiomassSummaryForPlot(ctx context.Context, plotID string, notBefore time.Time) (*domain.BiomassSummary, error)
}

// UseCase implements the planet verbs named in §4.3/§6.
type UseCase struct {
	client        SatClient
	repo          Repository
	maxCloudCover float64
	logger        *zap.Logger
}

func NewUseCase(client SatClient, repo Repository, cfg config.BiomassConfig, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &UseCase{client: client, repo: repo, maxCloudCover: cfg.MaxCloudCover, logger: logger}
}

// CreateSubscription implements POST /v1/planet/subscription (§4.3 step 1):
// request a subscription upstream, advance it from requested to active (or
// to failed when the upstream call errors) per the lifecycle table, and
// persist it in that advanced state.
func (u *UseCase) CreateSubscription(ctx context.Context, plotID, policyID string, geometry domain.GeoPolygon, start, end time.Time, productTag string) (domain.Subscription, error) {
	subscriptionID, err := u.client.Create(ctx, geometry, start, end, productTag)
	event := satellite.EventCreateOK
	status := domain.SubscriptionRequested
	if err != nil {
		event = satellite.EventCreateFail
	}
	status = satellite.Next(status, event)

	if subscriptionID == "" {
		subscriptionID = fmt.Sprintf("local-%s-%d", plotID, start.Unix())
	}

	sub := domain.Subscription{
		SubscriptionID: subscriptionID,
		PolicyID:       policyID,
		PlotID:         plotID,
		Geometry:       geometry,
		Start:          start,
		End:            end,
		Status:         status,
		ProductTag:     productTag,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if writeErr := u.repo.CreateSubscription(ctx, sub); writeErr != nil {
		return domain.Subscription{}, fmt.Errorf("planet: create subscription: %w", writeErr)
	}
	if err != nil {
		return sub, fmt.Errorf("planet: upstream create: %w", err)
	}
	return sub, nil
}

// Status implements GET /v1/planet/subscription/{id} (§6).
func (u *UseCase) Status(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	sub, err := u.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("planet: get subscription: %w", err)
	}
	if sub == nil {
		return nil, apperr.New(apperr.InsufficientData, "subscription not found")
	}
	return sub, nil
}

// Cancel implements DELETE /v1/planet/subscription/{id} (§4.3 cancel-cmd).
// Re-cancelling a terminal subscription is a no-op (§4.3).
func (u *UseCase) Cancel(ctx context.Context, subscriptionID string) error {
	sub, err := u.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("planet: get subscription: %w", err)
	}
	if sub == nil {
		return apperr.New(apperr.InsufficientData, "subscription not found")
	}
	if sub.Status.Terminal() {
		return nil
	}

	if err := u.client.Cancel(ctx, subscriptionID); err != nil {
		return fmt.Errorf("planet: upstream cancel: %w", err)
	}
	next := satellite.Next(sub.Status, satellite.EventCancel)
	if err := u.repo.UpdateSubscriptionStatus(ctx, subscriptionID, next); err != nil {
		return fmt.Errorf("planet: update subscription status: %w", err)
	}
	return nil
}

// ReduceBiomass implements the §4.3 reducer step: fold a subscription's raw
// samples into a BiomassSummary and persist it.
func (u *UseCase) ReduceBiomass(ctx context.Context, subscriptionID, plotID string) (domain.BiomassSummary, error) {
	samples, err := u.repo.RangeBiomassSamples(ctx, subscriptionID)
	if err != nil {
		return domain.BiomassSummary{}, fmt.Errorf("planet: range biomass samples: %w", err)
	}

	summary, err := satellite.Reduce(subscriptionID, plotID, samples)
	if err != nil {
		return domain.BiomassSummary{}, err
	}

	if err := u.repo.InsertBiomassSummary(ctx, summary); err != nil {
		return domain.BiomassSummary{}, fmt.Errorf("planet: insert biomass summary: %w", err)
	}
	if satellite.QualityWatchTripped(samples, u.maxCloudCover) {
		u.logger.Warn("biomass quality watch tripped", zap.String("subscription_id", subscriptionID), zap.String("plot_id", plotID))
	}
	return summary, nil
}

// LatestBiomass implements GET /v1/planet/biomass/{plot} (§6, internal-auth
// only).
func (u *UseCase) LatestBiomass(ctx context.Context, plotID string, notBefore time.Time) (*domain.BiomassSummary, error) {
	summary, err := u.repo.LatestBiomassSummaryForPlot(ctx, plotID, notBefore)
	if err != nil {
		return nil, fmt.Errorf("planet: latest biomass summary: %w", err)
	}
	return summary, nil
}
