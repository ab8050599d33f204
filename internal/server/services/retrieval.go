package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/cryptox"
	"github.com/dmitrijs2005/flaxvault/internal/logging"
	"github.com/dmitrijs2005/flaxvault/internal/metrics"
	"github.com/dmitrijs2005/flaxvault/internal/server/config"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/repomanager"
)

// BlobStore is what retrieval needs from the object store. *blobstore.Store implements it.
type BlobStore interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, bucket, key, filename string, ttl time.Duration) (string, error)
}

// RetrievalService turns stored ciphertext into a short-lived plaintext link.
type RetrievalService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       BlobStore
	mainBucket  string
	tempBucket  string
	ttl         time.Duration
	tempDir     string
	metrics     *metrics.Metrics
	logger      logging.Logger

	now        func() time.Time
	createTemp func(dir, pattern string) (*os.File, error)
}

func NewRetrievalService(db *sql.DB, m repomanager.RepositoryManager, blobs BlobStore,
	cfg *config.Config, mt *metrics.Metrics, logger logging.Logger) *RetrievalService {
	return &RetrievalService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		mainBucket:  cfg.S3MainBucket,
		tempBucket:  cfg.S3TempBucket,
		ttl:         cfg.DownloadURLValidity,
		tempDir:     cfg.StagingDir,
		metrics:     mt,
		logger:      logger.With("module", "retrieval"),
		now:         time.Now,
		createTemp:  os.CreateTemp,
	}
}

// sourceReader remembers the last read failure so a failed copy can be
// blamed on the right side.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// DownloadURL decrypts the object's ciphertext, verifies it against the
// recorded digest, stages the plaintext in the temp bucket under the object
// id and returns a presigned link that downloads it as the original name.
func (s *RetrievalService) DownloadURL(ctx context.Context, objectID string) (dl *models.DownloadURL, err error) {
	defer func() { s.metrics.ObserveDownload(err) }()

	obj, err := s.repomanager.Objects(s.db).GetByID(ctx, objectID)
	if err != nil {
		return nil, storageError(err)
	}
	if obj.Type() != models.TypeFile {
		return nil, fmt.Errorf("%w: %s is a directory", common.ErrInvalidOperation, objectID)
	}
	if obj.Content.UploadStatus == models.UploadFailed {
		return nil, fmt.Errorf("%w: upload of %s failed", common.ErrInvalidOperation, objectID)
	}
	if !obj.Stored() {
		return nil, fmt.Errorf("%w: %s is still being encrypted", common.ErrNotReady, objectID)
	}

	tmp, err := s.decryptToTemp(ctx, obj)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if err := s.blobs.Put(ctx, s.tempBucket, obj.ID, tmp, obj.Content.Size, obj.Content.Mimetype); err != nil {
		return nil, err
	}

	issued := s.now()
	url, err := s.blobs.PresignGet(ctx, s.tempBucket, obj.ID, obj.Name, s.ttl)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "download link issued", "object_id", obj.ID)
	return &models.DownloadURL{URL: url, ExpiresAt: issued.Add(s.ttl)}, nil
}

// decryptToTemp writes the object's plaintext to a temp file rewound to the
// start. A digest mismatch yields common.ErrIntegrity and no file.
func (s *RetrievalService) decryptToTemp(ctx context.Context, obj *models.Object) (*os.File, error) {
	body, err := s.blobs.Get(ctx, s.mainBucket, obj.BlobKey())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	plain, err := cryptox.NewReader(body, obj.Content.ContentKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrIntegrity, err)
	}

	tmp, err := s.createTemp(s.tempDir, "download-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrIO, err)
	}
	fail := func(err error) (*os.File, error) {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, err
	}

	h := sha256.New()
	src := &sourceReader{r: plain}
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	if err != nil {
		if src.err != nil {
			return fail(fmt.Errorf("%w: read ciphertext: %w", common.ErrObjectStore, err))
		}
		return fail(fmt.Errorf("%w: write temp file: %w", common.ErrIO, err))
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != obj.Content.ContentHash || n != obj.Content.Size {
		s.logger.Error(ctx, "content digest mismatch", "object_id", obj.ID, "size", n)
		return fail(fmt.Errorf("%w: object %s does not match its digest", common.ErrIntegrity, obj.ID))
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("%w: %w", common.ErrIO, err))
	}
	return tmp, nil
}
