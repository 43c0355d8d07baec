// Package persistence defines the storage contracts for journey documents
// and generation results.
package persistence

import (
	"context"

	"github.com/healthsim/healthsim/pkg/models"
)

// JourneyRepository loads validated journey specifications.
type JourneyRepository interface {
	// All returns every journey document in the store, sorted by name.
	All(ctx context.Context) ([]*models.JourneySpecification, error)

	// ByName returns one journey document or ErrJourneyNotFound.
	ByName(ctx context.Context, name string) (*models.JourneySpecification, error)
}

// ResultRepository stores the output of generation runs.
type ResultRepository interface {
	SaveResult(ctx context.Context, runID string, result *models.ExecutionResult) error
}

type Persistence interface {
	JourneyRepository() JourneyRepository
	ResultRepository() ResultRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
