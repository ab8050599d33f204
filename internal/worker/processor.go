// Package worker consumes upload events, encrypts the staged plaintext and
// stores the ciphertext in the object store.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/cryptox"
	"github.com/dmitrijs2005/flaxvault/internal/filex"
	"github.com/dmitrijs2005/flaxvault/internal/logging"
	"github.com/dmitrijs2005/flaxvault/internal/metrics"
	"github.com/dmitrijs2005/flaxvault/internal/server/config"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/repomanager"
)

// ErrPermanent marks failures that no redelivery can fix. Such messages go
// straight to the dead-letter queue.
var ErrPermanent = errors.New("permanent failure")

// Uploader stores a stream of known size. *blobstore.Store implements it.
type Uploader interface {
	UploadMultipart(ctx context.Context, bucket, key string, r io.Reader, size int64) error
}

// Result tells the consumer what happened and whether the staged plaintext
// can go once the message is acked.
type Result struct {
	Outcome     string
	DropStaging bool
	StoredBytes int64
}

type Processor struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       Uploader
	bucket      string
	stagingDir  string
	metrics     *metrics.Metrics
	logger      logging.Logger
}

func NewProcessor(db *sql.DB, m repomanager.RepositoryManager, blobs Uploader,
	cfg *config.Config, mt *metrics.Metrics, logger logging.Logger) *Processor {
	return &Processor{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		bucket:      cfg.S3MainBucket,
		stagingDir:  cfg.StagingDir,
		metrics:     mt,
		logger:      logger.With("module", "processor"),
	}
}

func permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Process encrypts the staged plaintext of ev and uploads it to
// "<owner>/<object>" in the main bucket, then marks the object stored.
// Missing, eliminated and already stored objects are skipped. The
// ciphertext depends only on the key and the plaintext, so a redelivered
// event writes identical bytes.
func (p *Processor) Process(ctx context.Context, ev models.UploadEvent) (Result, error) {
	objects := p.repomanager.Objects(p.db)

	obj, err := objects.Lookup(ctx, ev.ObjectID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			p.logger.Info(ctx, "object is gone, dropping event", "object_id", ev.ObjectID)
			return Result{Outcome: metrics.OutcomeSkipped, DropStaging: true}, nil
		}
		return Result{}, fmt.Errorf("%w: lookup %s: %w", common.ErrStorage, ev.ObjectID, err)
	}

	switch {
	case obj.State == models.Eliminated:
		p.logger.Info(ctx, "object eliminated, dropping event", "object_id", obj.ID)
		return Result{Outcome: metrics.OutcomeSkipped, DropStaging: true}, nil
	case obj.IsDir():
		return Result{}, permanent(fmt.Errorf("%w: %s is a directory", common.ErrInvalidOperation, obj.ID))
	case obj.OwnerID != ev.OwnerID || obj.Content.ContentKey != ev.ContentKey:
		return Result{}, permanent(fmt.Errorf("%w: event does not match object %s", common.ErrInvalidOperation, obj.ID))
	case obj.Stored():
		p.logger.Info(ctx, "object already stored", "object_id", obj.ID)
		return Result{Outcome: metrics.OutcomeSkipped, DropStaging: true}, nil
	}

	path := filex.StagingPath(p.stagingDir, obj.OwnerID, obj.ID)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, permanent(fmt.Errorf("%w: staging file for %s is missing", common.ErrIO, obj.ID))
		}
		return Result{}, fmt.Errorf("%w: open staging file: %w", common.ErrIO, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("%w: stat staging file: %w", common.ErrIO, err)
	}
	if info.Size() != obj.Content.Size {
		return Result{}, permanent(fmt.Errorf("%w: staged %d bytes, recorded %d", common.ErrIntegrity, info.Size(), obj.Content.Size))
	}

	ciphertext, err := cryptox.NewReader(f, obj.Content.ContentKey)
	if err != nil {
		return Result{}, permanent(err)
	}

	if err := p.blobs.UploadMultipart(ctx, p.bucket, obj.BlobKey(), ciphertext, obj.Content.Size); err != nil {
		return Result{}, err
	}

	if err := objects.MarkStored(ctx, obj.ID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return Result{Outcome: metrics.OutcomeSkipped, DropStaging: true}, nil
		}
		return Result{}, fmt.Errorf("%w: mark stored %s: %w", common.ErrStorage, obj.ID, err)
	}

	p.logger.Info(ctx, "object stored", "object_id", obj.ID, "size", obj.Content.Size)
	return Result{Outcome: metrics.OutcomeStored, DropStaging: true, StoredBytes: obj.Content.Size}, nil
}

// DropStaging removes the staged plaintext of ev.
func (p *Processor) DropStaging(ctx context.Context, ev models.UploadEvent) {
	path := filex.StagingPath(p.stagingDir, ev.OwnerID, ev.ObjectID)
	if err := filex.Remove(path); err != nil {
		p.logger.Error(ctx, "failed to remove staging file", "path", path, "error", err)
	}
}

// Fail marks the upload of ev failed. Only a pending file whose key matches
// ev is affected, so a stray event cannot retire someone else's upload.
func (p *Processor) Fail(ctx context.Context, ev models.UploadEvent) {
	if err := p.repomanager.Objects(p.db).MarkFailed(ctx, ev.ObjectID, ev.ContentKey); err != nil {
		p.logger.Error(ctx, "failed to mark upload failed", "object_id", ev.ObjectID, "error", err)
	}
}

// Touch pushes back the pending sweeper's deadline for ev.
func (p *Processor) Touch(ctx context.Context, ev models.UploadEvent) {
	if err := p.repomanager.Objects(p.db).MarkEnqueued(ctx, ev.ObjectID); err != nil {
		p.logger.Warn(ctx, "failed to touch pending upload", "object_id", ev.ObjectID, "error", err)
	}
}
