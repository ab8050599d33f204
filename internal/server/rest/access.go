package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/labstack/echo/v4"
)

func (s *Server) listGrants(c echo.Context) error {
	grants, err := s.access.ListGrants(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}

	res := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		res = append(res, newGrantResponse(g))
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) grant(c echo.Context) error {
	var req grantRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		return badRequest(c, "email is required")
	}

	g, err := s.access.Grant(c.Request().Context(), actorFrom(c), c.Param("id"), req.Email, req.Capabilities)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newGrantResponse(g))
}

func (s *Server) revoke(c echo.Context) error {
	userID := c.Param("user_id")
	if !isID(userID) {
		return s.writeError(c, fmt.Errorf("%w: no grant for %q", common.ErrNotFound, userID))
	}
	if err := s.access.Revoke(c.Request().Context(), actorFrom(c), c.Param("id"), userID); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
