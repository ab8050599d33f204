package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/logging"
	"github.com/sethvargo/go-retry"
)

const (
	defaultPartRetries = 3
	defaultPartBackoff = 200 * time.Millisecond
)

// Store wraps the object store with chunked uploads and presigning.
type Store struct {
	api       API
	presigner Presigner
	logger    logging.Logger

	chunkSize   int64
	partRetries uint64
	partBackoff time.Duration
}

// Option customizes a Store.
type Option func(*Store)

// WithChunkSize overrides the multipart part size.
func WithChunkSize(n int64) Option {
	return func(s *Store) { s.chunkSize = n }
}

// WithPartRetry sets how many times a failed part is retried and the base
// delay of the exponential backoff between tries. A non-positive base keeps
// the default.
func WithPartRetry(retries uint64, base time.Duration) Option {
	return func(s *Store) {
		s.partRetries = retries
		if base > 0 {
			s.partBackoff = base
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l.With("module", "blobstore") }
}

// New returns a Store over api. presigner may be nil when no links are issued.
func New(api API, presigner Presigner, opts ...Option) *Store {
	s := &Store{
		api:         api,
		presigner:   presigner,
		logger:      logging.NewNopLogger(),
		chunkSize:   ChunkSize,
		partRetries: defaultPartRetries,
		partBackoff: defaultPartBackoff,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UploadMultipart reads exactly size bytes from r and stores them under
// bucket/key as a multipart upload of PlanChunks(size) parts. Parts are
// retried individually; on any failure the upload is aborted so no partial
// object remains. An empty body is stored with a single PutObject.
func (s *Store) UploadMultipart(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	chunks := PlanChunks(size, s.chunkSize)
	if len(chunks) == 0 {
		return s.Put(ctx, bucket, key, bytes.NewReader(nil), 0, "")
	}

	created, err := s.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: create multipart upload %s: %w", common.ErrObjectStore, key, err)
	}
	uploadID := created.UploadId

	parts, err := s.uploadParts(ctx, bucket, key, uploadID, chunks, r)
	if err == nil {
		_, err = s.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(bucket),
			Key:             aws.String(key),
			UploadId:        uploadID,
			MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
		})
		if err != nil {
			err = fmt.Errorf("%w: complete multipart upload %s: %w", common.ErrObjectStore, key, err)
		}
	}
	if err != nil {
		s.abort(ctx, bucket, key, uploadID)
		return err
	}

	return nil
}

func (s *Store) uploadParts(ctx context.Context, bucket, key string, uploadID *string, chunks []Chunk, r io.Reader) ([]types.CompletedPart, error) {
	buf := make([]byte, s.chunkSize)
	parts := make([]types.CompletedPart, 0, len(chunks))

	for _, c := range chunks {
		part := buf[:c.Length]
		if _, err := io.ReadFull(r, part); err != nil {
			return nil, fmt.Errorf("%w: read part %d of %s: %w", common.ErrIO, c.PartNumber, key, err)
		}

		var etag *string
		b := retry.WithMaxRetries(s.partRetries, retry.NewExponential(s.partBackoff))
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			out, err := s.api.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:        aws.String(bucket),
				Key:           aws.String(key),
				UploadId:      uploadID,
				PartNumber:    aws.Int32(c.PartNumber),
				ContentLength: aws.Int64(c.Length),
				Body:          bytes.NewReader(part),
			})
			if err != nil {
				s.logger.Warn(ctx, "part upload failed", "key", key, "part", c.PartNumber, "error", err)
				return retry.RetryableError(err)
			}
			etag = out.ETag
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: upload part %d of %s: %w", common.ErrObjectStore, c.PartNumber, key, err)
		}

		parts = append(parts, types.CompletedPart{ETag: etag, PartNumber: aws.Int32(c.PartNumber)})
	}

	return parts, nil
}

// abort runs even if ctx is already cancelled.
func (s *Store) abort(ctx context.Context, bucket, key string, uploadID *string) {
	ctx = context.WithoutCancel(ctx)
	_, err := s.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
	if err != nil {
		s.logger.Error(ctx, "abort multipart upload failed", "key", key, "error", err)
	}
}

// Put stores body under bucket/key in one request. body should be seekable
// (a file or a bytes.Reader) so the request can be signed.
func (s *Store) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := s.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("%w: put %s: %w", common.ErrObjectStore, key, err)
	}
	return nil
}

// Get opens bucket/key for reading. A missing key is reported as both
// common.ErrObjectStore and common.ErrNotFound.
func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %w: %s", common.ErrObjectStore, common.ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: get %s: %w", common.ErrObjectStore, key, err)
	}
	return out.Body, nil
}

// PresignGet returns a GET link for bucket/key valid for ttl that makes the
// browser save the object as filename.
func (s *Store) PresignGet(ctx context.Context, bucket, key, filename string, ttl time.Duration) (string, error) {
	if s.presigner == nil {
		return "", fmt.Errorf("%w: presigner not configured", common.ErrObjectStore)
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(ContentDisposition(filename)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %w", common.ErrObjectStore, key, err)
	}
	return req.URL, nil
}

var filenameReplacer = strings.NewReplacer(`"`, "_", `\`, "_", "\r", "_", "\n", "_")

// ContentDisposition builds `attachment; filename="<name>"`, replacing
// characters that would break the quoted string.
func ContentDisposition(filename string) string {
	return `attachment; filename="` + filenameReplacer.Replace(filename) + `"`
}
