package models

import "time"

// UploadEvent asks the worker to move a staged file into encrypted storage.
type UploadEvent struct {
	OwnerID    string `json:"owner_id"`
	ObjectID   string `json:"object_id"`
	ContentKey string `json:"content_key"`
}

// DownloadURL is a short-lived presigned link to an object's plaintext.
type DownloadURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
