package rest

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/server/auth"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const actorKey = "actor"

// bearerAuth verifies the Authorization header and stores the actor in the
// echo context.
func (s *Server) bearerAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return s.writeError(c, common.ErrUnauthorized)
		}

		actor, err := auth.ActorFromToken(strings.TrimSpace(token), s.jwtSecret)
		if err != nil {
			return s.writeError(c, common.ErrInvalidToken)
		}

		c.Set(actorKey, actor)
		return next(c)
	}
}

func actorFrom(c echo.Context) models.Actor {
	actor, _ := c.Get(actorKey).(models.Actor)
	return actor
}

// isID reports whether v is a canonical UUID, the only form the id columns hold.
func isID(v string) bool {
	return len(v) == 36 && uuid.Validate(v) == nil
}

// requireOn checks that the caller holds capability on the object named by
// the :id path parameter. Ids that cannot exist are reported as not found.
func (s *Server) requireOn(capability models.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Param("id")
			if !isID(id) {
				return s.writeError(c, fmt.Errorf("%w: object %q", common.ErrNotFound, id))
			}
			if err := s.access.Require(c.Request().Context(), actorFrom(c).Owner(), id, capability); err != nil {
				return s.writeError(c, err)
			}
			return next(c)
		}
	}
}
