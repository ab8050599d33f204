package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/dmitrijs2005/flaxvault/internal/server/services"
	"github.com/labstack/echo/v4"
)

const fileField = "file"

var errBadParent = errors.New("parent_id must be a uuid")

// parentParam reads the optional ?parent_id= folder filter.
func parentParam(c echo.Context) (*string, error) {
	v := c.QueryParam("parent_id")
	if v == "" {
		return nil, nil
	}
	if !isID(v) {
		return nil, errBadParent
	}
	return &v, nil
}

func pageFrom(c echo.Context) (models.Page, error) {
	var p models.Page
	var err error
	if v := c.QueryParam("limit"); v != "" {
		if p.Limit, err = strconv.Atoi(v); err != nil {
			return p, errors.New("limit must be an integer")
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if p.Offset, err = strconv.Atoi(v); err != nil {
			return p, errors.New("offset must be an integer")
		}
	}
	return p.Normalize(), nil
}

// requireOnParent checks edit access on the target folder of a create.
func (s *Server) requireOnParent(c echo.Context, parentID *string) error {
	if parentID == nil {
		return nil
	}
	return s.access.Require(c.Request().Context(), actorFrom(c).Owner(), *parentID, models.CapEdit)
}

// uploadFile streams the "file" part of a multipart body into ingestion.
// The file name comes from the part unless ?name= overrides it; the target
// folder is ?parent_id=.
func (s *Server) uploadFile(c echo.Context) error {
	ctx := c.Request().Context()
	parentID, err := parentParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := s.requireOnParent(c, parentID); err != nil {
		return s.writeError(c, err)
	}

	mr, err := c.Request().MultipartReader()
	if err != nil {
		return badRequest(c, "multipart body is required")
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return badRequest(c, "file part is required")
		}
		if err != nil {
			return badRequest(c, "malformed multipart body")
		}

		if part.FormName() != fileField {
			drain(part)
			continue
		}

		name := c.QueryParam("name")
		if name == "" {
			name = part.FileName()
		}

		obj, err := s.objects.Ingest(ctx, actorFrom(c), services.IngestRequest{
			ParentID:    parentID,
			Name:        name,
			ContentType: part.Header.Get(echo.HeaderContentType),
			Body:        part,
		})
		if err != nil {
			return s.writeError(c, err)
		}

		return c.JSON(http.StatusCreated, newObjectResponse(obj))
	}
}

func (s *Server) createFolder(c echo.Context) error {
	var req createFolderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	if req.Name == "" {
		return badRequest(c, "name is required")
	}
	if req.ParentID != nil && !isID(*req.ParentID) {
		return badRequest(c, errBadParent.Error())
	}

	if err := s.requireOnParent(c, req.ParentID); err != nil {
		return s.writeError(c, err)
	}

	obj, err := s.objects.CreateFolder(c.Request().Context(), actorFrom(c), req.ParentID, req.Name)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, newObjectResponse(obj))
}

func (s *Server) listOwn(c echo.Context) error {
	page, err := pageFrom(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	parentID, err := parentParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	objs, err := s.objects.ListOwn(c.Request().Context(), actorFrom(c), parentID, page)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, newListResponse(objs, page))
}

func (s *Server) listShared(c echo.Context) error {
	page, err := pageFrom(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	parentID, err := parentParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	objs, err := s.objects.ListShared(c.Request().Context(), actorFrom(c), parentID, page)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, newListResponse(objs, page))
}

func (s *Server) listTrash(c echo.Context) error {
	page, err := pageFrom(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	objs, err := s.objects.ListTrash(c.Request().Context(), actorFrom(c), page)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, newListResponse(objs, page))
}

func (s *Server) trash(c echo.Context) error {
	if err := s.objects.Trash(c.Request().Context(), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) restore(c echo.Context) error {
	if err := s.objects.Restore(c.Request().Context(), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) eliminate(c echo.Context) error {
	if err := s.objects.Eliminate(c.Request().Context(), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) download(c echo.Context) error {
	dl, err := s.retrieval.DownloadURL(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dl)
}
