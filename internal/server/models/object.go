// Package models defines server-side data models persisted in the database
// and exchanged between components.
package models

import "time"

// ObjectType distinguishes directories from files. It is derived from the
// presence of content, never stored on its own.
type ObjectType string

const (
	TypeDirectory ObjectType = "directory"
	TypeFile      ObjectType = "file"
)

// Upload states of a file's content.
const (
	UploadPending = "pending"
	UploadStored  = "stored"
	// UploadFailed means the worker gave up and the event was dead-lettered.
	UploadFailed = "failed"
)

// Object is a node of a user's storage tree.
type Object struct {
	ID       string
	ParentID *string
	// OwnerID is the namespace owner; CreatorID is whoever performed the
	// creation (the owner, or a robot acting on the owner's behalf).
	OwnerID   string
	CreatorID string
	Name      string
	// Content is nil for directories.
	Content   *FileContent
	State     Lifecycle
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// FileContent is the payload metadata carried only by files.
type FileContent struct {
	Size         int64
	Mimetype     string
	ContentKey   string
	ContentHash  string
	UploadStatus string
}

// Type reports whether o is a directory or a file.
func (o *Object) Type() ObjectType {
	if o.Content == nil {
		return TypeDirectory
	}
	return TypeFile
}

// IsDir is shorthand for Type() == TypeDirectory.
func (o *Object) IsDir() bool {
	return o.Type() == TypeDirectory
}

// Stored reports whether a file's encrypted content is durable in the object store.
func (o *Object) Stored() bool {
	return o.Content != nil && o.Content.UploadStatus == UploadStored
}

// BlobKey is the main-bucket key of the object's ciphertext.
func (o *Object) BlobKey() string {
	return BlobKey(o.OwnerID, o.ID)
}

// BlobKey builds the main-bucket key "<owner_id>/<object_id>".
func BlobKey(ownerID, objectID string) string {
	return ownerID + "/" + objectID
}
