// Package services contains server-side business logic: access control,
// ingestion and lifecycle of objects, and retrieval of decrypted content.
package services

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/flaxvault/internal/common"
)

var classified = []error{
	common.ErrIO,
	common.ErrStorage,
	common.ErrObjectStore,
	common.ErrIntegrity,
	common.ErrNotFound,
	common.ErrAlreadyExists,
	common.ErrConflict,
	common.ErrInvalidOperation,
	common.ErrPermissionDenied,
	common.ErrNotReady,
}

// storageError keeps already classified errors and tags anything else as
// common.ErrStorage.
func storageError(err error) error {
	for _, target := range classified {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", common.ErrStorage, err)
}
