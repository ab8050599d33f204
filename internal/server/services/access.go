package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/logging"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/repomanager"
)

// AccessService manages capability grants and answers authorization checks.
type AccessService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewAccessService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *AccessService {
	return &AccessService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "access"),
	}
}

// Grant gives the user registered under recipientEmail caps on objectID.
// Granting the same pair twice fails with common.ErrAlreadyExists.
func (s *AccessService) Grant(ctx context.Context, actor models.Actor, objectID, recipientEmail string, caps models.Capabilities) (*models.Grant, error) {
	recipient, err := s.repomanager.Users(s.db).GetByEmail(ctx, recipientEmail)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: no user with email %q", common.ErrNotFound, recipientEmail)
		}
		return nil, storageError(err)
	}

	if _, err := s.repomanager.Objects(s.db).GetByID(ctx, objectID); err != nil {
		return nil, storageError(err)
	}

	p := &models.Permission{UserID: recipient.ID, ObjectID: objectID, Capabilities: caps}
	if err := s.repomanager.Permissions(s.db).Create(ctx, p); err != nil {
		return nil, storageError(err)
	}

	s.logger.Info(ctx, "access granted", "object_id", objectID, "by", actor.ID, "to", recipient.ID,
		"read", caps.Read, "edit", caps.Edit, "delete", caps.Delete)

	return &models.Grant{
		UserID:       recipient.ID,
		Email:        recipient.Email,
		Capabilities: caps,
		CreatedAt:    p.CreatedAt,
	}, nil
}

// Revoke removes recipientID's grant on objectID. An actor cannot revoke
// their own access, and nobody can revoke the owner's.
func (s *AccessService) Revoke(ctx context.Context, actor models.Actor, objectID, recipientID string) error {
	if actor.Owner() == recipientID {
		return fmt.Errorf("%w: cannot revoke your own access", common.ErrInvalidOperation)
	}

	obj, err := s.repomanager.Objects(s.db).GetByID(ctx, objectID)
	if err != nil {
		return storageError(err)
	}
	if obj.OwnerID == recipientID {
		return fmt.Errorf("%w: cannot revoke the owner's access", common.ErrInvalidOperation)
	}

	if err := s.repomanager.Permissions(s.db).Delete(ctx, recipientID, objectID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: no grant for user %s", common.ErrNotFound, recipientID)
		}
		return storageError(err)
	}

	s.logger.Info(ctx, "access revoked", "object_id", objectID, "by", actor.ID, "from", recipientID)
	return nil
}

// ListGrants returns every grant on objectID, oldest first.
func (s *AccessService) ListGrants(ctx context.Context, objectID string) ([]*models.Grant, error) {
	grants, err := s.repomanager.Permissions(s.db).ListByObject(ctx, objectID)
	if err != nil {
		return nil, storageError(err)
	}
	return grants, nil
}

// Require fails with common.ErrPermissionDenied unless userID holds
// capability on objectID.
func (s *AccessService) Require(ctx context.Context, userID, objectID string, capability models.Capability) error {
	p, err := s.repomanager.Permissions(s.db).Get(ctx, userID, objectID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: no access to %s", common.ErrPermissionDenied, objectID)
		}
		return storageError(err)
	}
	if !p.Capabilities.Allows(capability) {
		return fmt.Errorf("%w: %s not allowed on %s", common.ErrPermissionDenied, capability, objectID)
	}
	return nil
}
