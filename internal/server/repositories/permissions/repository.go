package permissions

import (
	"context"

	"github.com/dmitrijs2005/flaxvault/internal/server/models"
)

// Repository stores (user, object) capability grants.
type Repository interface {
	Create(ctx context.Context, p *models.Permission) error
	Get(ctx context.Context, userID, objectID string) (*models.Permission, error)
	Delete(ctx context.Context, userID, objectID string) error
	ListByObject(ctx context.Context, objectID string) ([]*models.Grant, error)
}
