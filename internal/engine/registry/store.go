package registry

import (
	"context"

	"switchboard/internal/engine/vault"
	"switchboard/internal/platform/models"
)

// Store persists registrations. Lookups return nil, nil when nothing
// matches. Unique violations surface as ConflictError.
type Store interface {
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	UpdateRegistration(ctx context.Context, reg *models.Registration) error
	DeleteRegistration(ctx context.Context, tenantID, id string) (bool, error)
	GetRegistration(ctx context.Context, tenantID, id string) (*models.Registration, error)
	ListRegistrations(ctx context.Context, tenantID string) ([]*models.Registration, error)
	FindActiveFunction(ctx context.Context, tenantID, functionName string) (*models.Registration, error)
	FindActiveEvent(ctx context.Context, tenantID, eventType string) ([]*models.Registration, error)
}

type Sealer interface {
	Encrypt(plaintext string) (vault.Sealed, error)
}
