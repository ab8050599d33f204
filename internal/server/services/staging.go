package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/filex"
)

// contextReader stops reading once ctx is done, so a client that goes away
// mid-upload aborts the copy.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// stage streams body into a new file at path, hashing as it goes. On any
// failure the partial file is removed and a common.ErrIO error returned.
func stage(ctx context.Context, path string, body io.Reader) (size int64, digest string, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, "", fmt.Errorf("%w: create staging file: %w", common.ErrIO, err)
	}

	defer func() {
		if err != nil {
			_ = filex.Remove(path)
		}
	}()

	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(f, h), contextReader{ctx: ctx, r: body})
	if err != nil {
		_ = f.Close()
		return 0, "", fmt.Errorf("%w: stage upload: %w", common.ErrIO, err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return 0, "", fmt.Errorf("%w: sync staging file: %w", common.ErrIO, err)
	}
	if err = f.Close(); err != nil {
		return 0, "", fmt.Errorf("%w: close staging file: %w", common.ErrIO, err)
	}

	return size, hex.EncodeToString(h.Sum(nil)), nil
}
