package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
}

var statusByError = []struct {
	err    error
	status int
}{
	{common.ErrUnauthorized, http.StatusUnauthorized},
	{common.ErrInvalidToken, http.StatusUnauthorized},
	{common.ErrPermissionDenied, http.StatusForbidden},
	{common.ErrNotFound, http.StatusNotFound},
	{common.ErrAlreadyExists, http.StatusConflict},
	{common.ErrConflict, http.StatusConflict},
	{common.ErrInvalidOperation, http.StatusUnprocessableEntity},
	{common.ErrNotReady, http.StatusServiceUnavailable},
	{common.ErrObjectStore, http.StatusBadGateway},
}

// statusFor maps a classified error to an HTTP status. Anything unclassified,
// including storage, io and integrity failures, is a 500.
func statusFor(err error) int {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// writeError renders err. Server-side failures are logged and their detail
// is not echoed to the client.
func (s *Server) writeError(c echo.Context, err error) error {
	status := statusFor(err)
	msg := err.Error()

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error(c.Request().Context(), "request failed",
			"method", c.Request().Method, "path", c.Path(), "status", status, "error", err)
		msg = http.StatusText(status)
	}
	if status == http.StatusServiceUnavailable {
		c.Response().Header().Set("Retry-After", "5")
	}

	return c.JSON(status, errorResponse{Error: msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
