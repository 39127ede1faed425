// Package damage wires the evidence bundler into the assess/list/get verbs
// (§4.4, §6), following the same thin-usecase layering as features/weather.
package damage

import (
	"context"
	"fmt"

	"github.com/harvestguard/ingestcore/internal/domain"
	"github.com/harvestguard/ingestcore/internal/evidence"
)

// Repository is the storage surface the damage use case needs directly
// (beyond what it delegates to the bundler).
type Repository interface {
	GetAssessment(ctx context.Context, assessmentID string) (*domain.Assessment, error)
	ListAssessments(ctx context.Context, plotID string, limit, offset int) ([]domain.Assessment, error)
}

// UseCase implements the damage-assessment verbs (§6).
type UseCase struct {
	bundler *evidence.Bundler
	repo    Repository
}

func NewUseCase(bundler *evidence.Bundler, repo Repository) *UseCase {
	return &UseCase{bundler: bundler, repo: repo}
}

// Assess implements POST /v1/damage/assess (§6): runs the bundler
// synchronously for the core's representative surface; process-pending-
// assessments does the same work on a schedule for triggered plots.
func (u *UseCase) Assess(ctx context.Context, req evidence.Request) (domain.Assessment, error) {
	assessment, err := u.bundler.Assemble(ctx, req)
	if err != nil {
		return assessment, err
	}
	return assessment, nil
}

// Get implements GET /v1/damage/assessment/{id} (§6).
func (u *UseCase) Get(ctx context.Context, assessmentID string) (*domain.Assessment, error) {
	a, err := u.repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("damage: get assessment: %w", err)
	}
	return a, nil
}

// List implements GET /v1/damage/assessments/{plot} (§6), default page
// size 10.
func (u *UseCase) List(ctx context.Context, plotID string, limit, offset int) ([]domain.Assessment, error) {
	if limit <= 0 {
		limit = 10
	}
	assessments, err := u.repo.ListAssessments(ctx, plotID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("damage: list assessments: %w", err)
	}
	return assessments, nil
}
