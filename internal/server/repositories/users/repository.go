package users

import (
	"context"

	"github.com/dmitrijs2005/flaxvault/internal/server/models"
)

// Repository reads user identities. Accounts are provisioned by the identity
// service, so there are no write operations here.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}
