package objects

import (
	"context"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/server/models"
)

// Repository persists the object tree and drives lifecycle transitions.
type Repository interface {
	Create(ctx context.Context, obj *models.Object) (*models.Object, error)
	// GetByID returns a non-eliminated object.
	GetByID(ctx context.Context, id string) (*models.Object, error)
	// Lookup returns the object in any lifecycle state.
	Lookup(ctx context.Context, id string) (*models.Object, error)

	Trash(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	Eliminate(ctx context.Context, id string) error

	ListOwn(ctx context.Context, ownerID string, parentID *string, page models.Page) ([]*models.Object, error)
	ListShared(ctx context.Context, userID string, parentID *string, page models.Page) ([]*models.Object, error)
	ListTrash(ctx context.Context, ownerID string, page models.Page) ([]*models.Object, error)

	MarkStored(ctx context.Context, id string) error
	// MarkFailed retires a pending file with the given content key from the sweeper.
	MarkFailed(ctx context.Context, id, contentKey string) error
	// MarkEnqueued records that an upload event for id was just published.
	MarkEnqueued(ctx context.Context, id string) error
	ListPending(ctx context.Context, enqueuedBefore time.Time, limit int) ([]*models.Object, error)
}
