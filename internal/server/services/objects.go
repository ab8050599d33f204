package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/cryptox"
	"github.com/dmitrijs2005/flaxvault/internal/dbx"
	"github.com/dmitrijs2005/flaxvault/internal/filex"
	"github.com/dmitrijs2005/flaxvault/internal/logging"
	"github.com/dmitrijs2005/flaxvault/internal/metrics"
	"github.com/dmitrijs2005/flaxvault/internal/server/config"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const defaultMimetype = "application/octet-stream"

// UploadPublisher hands upload events to the queue.
type UploadPublisher interface {
	PublishUpload(ctx context.Context, kind models.ActorKind, ev models.UploadEvent) error
}

// IngestRequest is a validated file upload.
type IngestRequest struct {
	ParentID    *string
	Name        string
	ContentType string
	Body        io.Reader
}

// ObjectService creates objects, moves them through their lifecycle and lists them.
type ObjectService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	publisher   UploadPublisher
	stagingDir  string
	metrics     *metrics.Metrics
	logger      logging.Logger

	newID func() string
	now   func() time.Time
}

func NewObjectService(db *sql.DB, m repomanager.RepositoryManager, publisher UploadPublisher,
	cfg *config.Config, mt *metrics.Metrics, logger logging.Logger) *ObjectService {
	return &ObjectService{
		db:          db,
		repomanager: m,
		publisher:   publisher,
		stagingDir:  cfg.StagingDir,
		metrics:     mt,
		logger:      logger.With("module", "objects"),
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: invalid name %q", common.ErrInvalidOperation, name)
	}
	return nil
}

// Ingest stages req.Body, records the file and its owner grant in one
// transaction and, once committed, publishes an upload event. The staged file
// is left for the encryption worker.
func (s *ObjectService) Ingest(ctx context.Context, actor models.Actor, req IngestRequest) (obj *models.Object, err error) {
	var size int64
	defer func() { s.metrics.ObserveIngest(size, err) }()

	if err := validateName(req.Name); err != nil {
		return nil, err
	}

	id := s.newID()
	key, err := cryptox.NewContentKey()
	if err != nil {
		return nil, fmt.Errorf("%w: content key: %w", common.ErrIO, err)
	}

	owner := actor.Owner()
	path := filex.StagingPath(s.stagingDir, owner, id)

	size, digest, err := stage(ctx, path, req.Body)
	if err != nil {
		s.logger.Warn(ctx, "staging failed", "object_id", id, "error", err)
		return nil, err
	}

	mimetype := req.ContentType
	if mimetype == "" {
		mimetype = defaultMimetype
	}

	obj = &models.Object{
		ID:        id,
		ParentID:  req.ParentID,
		OwnerID:   owner,
		CreatorID: actor.ID,
		Name:      req.Name,
		State:     models.Active,
		Content: &models.FileContent{
			Size:         size,
			Mimetype:     mimetype,
			ContentKey:   key,
			ContentHash:  digest,
			UploadStatus: models.UploadPending,
		},
	}

	if err := s.persist(ctx, obj); err != nil {
		if rmErr := filex.Remove(path); rmErr != nil {
			s.logger.Error(ctx, "failed to remove staging file", "path", path, "error", rmErr)
		}
		return nil, err
	}

	// The object is committed; a failed publish is recovered by the pending sweeper.
	ev := models.UploadEvent{OwnerID: owner, ObjectID: id, ContentKey: key}
	if err := s.publisher.PublishUpload(context.WithoutCancel(ctx), actor.Kind, ev); err != nil {
		s.metrics.PublishFailed()
		s.logger.Error(ctx, "failed to publish upload event", "object_id", id, "error", err)
	}

	s.logger.Info(ctx, "file ingested", "object_id", id, "owner_id", owner, "size", size)
	return obj, nil
}

// CreateFolder records a directory and its owner grant.
func (s *ObjectService) CreateFolder(ctx context.Context, actor models.Actor, parentID *string, name string) (*models.Object, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	obj := &models.Object{
		ID:        s.newID(),
		ParentID:  parentID,
		OwnerID:   actor.Owner(),
		CreatorID: actor.ID,
		Name:      name,
		State:     models.Active,
	}
	if err := s.persist(ctx, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// persist inserts obj and the owner's full grant atomically, after checking
// that the parent is an active (not trashed) directory of the same owner.
func (s *ObjectService) persist(ctx context.Context, obj *models.Object) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		objects := s.repomanager.Objects(tx)

		if obj.ParentID != nil {
			parent, err := objects.GetByID(ctx, *obj.ParentID)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return fmt.Errorf("%w: parent %s", common.ErrNotFound, *obj.ParentID)
				}
				return err
			}
			if !parent.IsDir() {
				return fmt.Errorf("%w: parent %s is not a directory", common.ErrInvalidOperation, parent.ID)
			}
			if parent.State != models.Active {
				return fmt.Errorf("%w: parent %s is %s", common.ErrInvalidOperation, parent.ID, parent.State)
			}
			if parent.OwnerID != obj.OwnerID {
				return fmt.Errorf("%w: parent %s belongs to another owner", common.ErrInvalidOperation, parent.ID)
			}
		}

		if _, err := objects.Create(ctx, obj); err != nil {
			return err
		}

		return s.repomanager.Permissions(tx).Create(ctx, &models.Permission{
			UserID:       obj.OwnerID,
			ObjectID:     obj.ID,
			Capabilities: models.OwnerCapabilities(),
		})
	})
	if err != nil {
		return storageError(err)
	}
	return nil
}

// Trash moves an active object to the trash.
func (s *ObjectService) Trash(ctx context.Context, objectID string) error {
	return s.transition(ctx, objectID, models.Trashed)
}

// Restore brings a trashed object back.
func (s *ObjectService) Restore(ctx context.Context, objectID string) error {
	return s.transition(ctx, objectID, models.Active)
}

// Eliminate permanently removes an object from every view.
func (s *ObjectService) Eliminate(ctx context.Context, objectID string) error {
	return s.transition(ctx, objectID, models.Eliminated)
}

func (s *ObjectService) transition(ctx context.Context, objectID string, to models.Lifecycle) error {
	repo := s.repomanager.Objects(s.db)

	obj, err := repo.Lookup(ctx, objectID)
	if err != nil {
		return storageError(err)
	}
	if obj.State == models.Eliminated {
		return common.ErrNotFound
	}
	if !models.CanTransition(obj.State, to) {
		return fmt.Errorf("%w: object %s is %s", common.ErrConflict, objectID, obj.State)
	}

	switch to {
	case models.Trashed:
		err = repo.Trash(ctx, objectID)
	case models.Active:
		err = repo.Restore(ctx, objectID)
	case models.Eliminated:
		err = repo.Eliminate(ctx, objectID)
	}
	if err != nil {
		return storageError(err)
	}

	s.logger.Info(ctx, "object state changed", "object_id", objectID, "from", obj.State.String(), "to", to.String())
	return nil
}

// ListOwn lists the actor's namespace under parentID (nil = root).
func (s *ObjectService) ListOwn(ctx context.Context, actor models.Actor, parentID *string, page models.Page) ([]*models.Object, error) {
	res, err := s.repomanager.Objects(s.db).ListOwn(ctx, actor.Owner(), parentID, page)
	if err != nil {
		return nil, storageError(err)
	}
	return res, nil
}

// ListShared lists objects other users shared with the actor.
func (s *ObjectService) ListShared(ctx context.Context, actor models.Actor, parentID *string, page models.Page) ([]*models.Object, error) {
	res, err := s.repomanager.Objects(s.db).ListShared(ctx, actor.Owner(), parentID, page)
	if err != nil {
		return nil, storageError(err)
	}
	return res, nil
}

// ListTrash lists the actor's trashed objects.
func (s *ObjectService) ListTrash(ctx context.Context, actor models.Actor, page models.Page) ([]*models.Object, error) {
	res, err := s.repomanager.Objects(s.db).ListTrash(ctx, actor.Owner(), page)
	if err != nil {
		return nil, storageError(err)
	}
	return res, nil
}
