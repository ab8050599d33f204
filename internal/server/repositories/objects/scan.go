package objects

import (
	"database/sql"

	"github.com/dmitrijs2005/flaxvault/internal/server/models"
)

const qualified = `o.id, o.parent_id, o.owner_id, o.creator_id, o.name, o.is_dir, o.size, o.mimetype,
		o.content_key, o.content_hash, o.upload_status, o.in_trash, o.eliminated, o.created_at, o.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// scanObject reads one row in the column order of `columns`.
func scanObject(s scanner) (*models.Object, error) {
	var (
		obj                               models.Object
		parentID                          sql.NullString
		isDir, inTrash, eliminated        bool
		size                              sql.NullInt64
		mimetype, key, hash, uploadStatus sql.NullString
		updatedAt                         sql.NullTime
	)

	if err := s.Scan(&obj.ID, &parentID, &obj.OwnerID, &obj.CreatorID, &obj.Name, &isDir, &size, &mimetype,
		&key, &hash, &uploadStatus, &inTrash, &eliminated, &obj.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}

	if parentID.Valid {
		obj.ParentID = &parentID.String
	}
	if updatedAt.Valid {
		obj.UpdatedAt = &updatedAt.Time
	}
	if !isDir {
		obj.Content = &models.FileContent{
			Size:         size.Int64,
			Mimetype:     mimetype.String,
			ContentKey:   key.String,
			ContentHash:  hash.String,
			UploadStatus: uploadStatus.String,
		}
	}
	obj.State = models.LifecycleFromFlags(inTrash, eliminated)

	return &obj, nil
}

// nullable turns an optional id into a driver value.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
