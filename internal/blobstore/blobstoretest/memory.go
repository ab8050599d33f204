// Package blobstoretest provides an in-memory object store implementing
// blobstore.API and blobstore.Presigner for tests.
package blobstoretest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

type upload struct {
	bucket, key string
	parts       map[int32][]byte
}

// Memory is a goroutine-safe fake S3. The Fail* hooks, when set, are
// consulted before each call and may return an error to inject a failure.
type Memory struct {
	mu      sync.Mutex
	objects map[string]Object
	uploads map[string]*upload

	Aborted   []string
	Completed []string
	PartCalls int

	FailCreate   func(key string) error
	FailPart     func(key string, part int32, call int) error
	FailComplete func(key string) error
	FailPut      func(key string) error
	FailGet      func(key string) error
	FailPresign  func(key string) error

	// LastPresign is the most recent presign request.
	LastPresign *s3.GetObjectInput
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]Object),
		uploads: make(map[string]*upload),
	}
}

func id(bucket, key string) string { return bucket + "/" + key }

// Object returns the blob at bucket/key.
func (m *Memory) Object(bucket, key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id(bucket, key)]
	return o, ok
}

// SetObject seeds bucket/key.
func (m *Memory) SetObject(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id(bucket, key)] = Object{Data: append([]byte(nil), data...)}
}

// OpenUploads counts multipart uploads neither completed nor aborted.
func (m *Memory) OpenUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

func (m *Memory) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	key := aws.ToString(in.Key)
	if m.FailCreate != nil {
		if err := m.FailCreate(key); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	uploadID := uuid.NewString()
	m.uploads[uploadID] = &upload{bucket: aws.ToString(in.Bucket), key: key, parts: make(map[int32][]byte)}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(uploadID)}, nil
}

func (m *Memory) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	key := aws.ToString(in.Key)
	part := aws.ToInt32(in.PartNumber)

	m.mu.Lock()
	m.PartCalls++
	call := m.PartCalls
	m.mu.Unlock()

	if m.FailPart != nil {
		if err := m.FailPart(key, part, call); err != nil {
			return nil, err
		}
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	u.parts[part] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", part))}, nil
}

func (m *Memory) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	key := aws.ToString(in.Key)
	if m.FailComplete != nil {
		if err := m.FailComplete(key); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	uploadID := aws.ToString(in.UploadId)
	u, ok := m.uploads[uploadID]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}

	var listed []int32
	for _, p := range in.MultipartUpload.Parts {
		n := aws.ToInt32(p.PartNumber)
		if aws.ToString(p.ETag) != fmt.Sprintf("etag-%d", n) {
			return nil, errors.New("etag mismatch")
		}
		listed = append(listed, n)
	}
	if !sort.SliceIsSorted(listed, func(i, j int) bool { return listed[i] < listed[j] }) {
		return nil, errors.New("parts not in ascending order")
	}

	var buf bytes.Buffer
	for _, n := range listed {
		data, ok := u.parts[n]
		if !ok {
			return nil, fmt.Errorf("part %d was never uploaded", n)
		}
		buf.Write(data)
	}

	m.objects[id(u.bucket, u.key)] = Object{Data: buf.Bytes()}
	delete(m.uploads, uploadID)
	m.Completed = append(m.Completed, key)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (m *Memory) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, aws.ToString(in.UploadId))
	m.Aborted = append(m.Aborted, aws.ToString(in.Key))
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (m *Memory) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if m.FailPut != nil {
		if err := m.FailPut(key); err != nil {
			return nil, err
		}
	}

	var data []byte
	if in.Body != nil {
		b, err := io.ReadAll(in.Body)
		if err != nil {
			return nil, err
		}
		data = b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id(aws.ToString(in.Bucket), key)] = Object{Data: data, ContentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (m *Memory) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	if m.FailGet != nil {
		if err := m.FailGet(key); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id(aws.ToString(in.Bucket), key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(o.Data)),
		ContentLength: aws.Int64(int64(len(o.Data))),
	}, nil
}

func (m *Memory) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	key := aws.ToString(in.Key)
	if m.FailPresign != nil {
		if err := m.FailPresign(key); err != nil {
			return nil, err
		}
	}

	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	m.mu.Lock()
	m.LastPresign = in
	m.mu.Unlock()

	q := url.Values{}
	q.Set("X-Amz-Expires", fmt.Sprintf("%d", int(opts.Expires.Seconds())))
	q.Set("response-content-disposition", aws.ToString(in.ResponseContentDisposition))
	u := url.URL{Scheme: "http", Host: "s3.local", Path: "/" + aws.ToString(in.Bucket) + "/" + key, RawQuery: q.Encode()}

	return &v4.PresignedHTTPRequest{URL: u.String(), Method: "GET"}, nil
}
