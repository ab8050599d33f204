package rest

import (
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/server/models"
)

type objectResponse struct {
	ID           string            `json:"id"`
	ParentID     *string           `json:"parent_id"`
	OwnerID      string            `json:"owner_id"`
	CreatorID    string            `json:"creator_id"`
	Name         string            `json:"name"`
	Type         models.ObjectType `json:"type"`
	Size         *int64            `json:"size,omitempty"`
	Mimetype     string            `json:"mimetype,omitempty"`
	UploadStatus string            `json:"upload_status,omitempty"`
	State        string            `json:"state"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    *time.Time        `json:"updated_at,omitempty"`
}

// newObjectResponse never exposes the content key or digest.
func newObjectResponse(o *models.Object) objectResponse {
	r := objectResponse{
		ID:        o.ID,
		ParentID:  o.ParentID,
		OwnerID:   o.OwnerID,
		CreatorID: o.CreatorID,
		Name:      o.Name,
		Type:      o.Type(),
		State:     o.State.String(),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if o.Content != nil {
		size := o.Content.Size
		r.Size = &size
		r.Mimetype = o.Content.Mimetype
		r.UploadStatus = o.Content.UploadStatus
	}
	return r
}

type listResponse struct {
	Items  []objectResponse `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func newListResponse(objs []*models.Object, page models.Page) listResponse {
	items := make([]objectResponse, 0, len(objs))
	for _, o := range objs {
		items = append(items, newObjectResponse(o))
	}
	return listResponse{Items: items, Limit: page.Limit, Offset: page.Offset}
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

type grantRequest struct {
	Email string `json:"email"`
	models.Capabilities
}

type grantResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	models.Capabilities
	CreatedAt time.Time `json:"created_at"`
}

func newGrantResponse(g *models.Grant) grantResponse {
	return grantResponse{UserID: g.UserID, Email: g.Email, Capabilities: g.Capabilities, CreatedAt: g.CreatedAt}
}
