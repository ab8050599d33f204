// Package rest is the HTTP boundary of the API server. It authenticates the
// caller, checks capabilities, turns requests into service calls and maps
// classified errors to status codes.
package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/logging"
	"github.com/dmitrijs2005/flaxvault/internal/metrics"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/dmitrijs2005/flaxvault/internal/server/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 10 * time.Second

// ObjectService is the subset of *services.ObjectService used by the handlers.
type ObjectService interface {
	Ingest(ctx context.Context, actor models.Actor, req services.IngestRequest) (*models.Object, error)
	CreateFolder(ctx context.Context, actor models.Actor, parentID *string, name string) (*models.Object, error)
	Trash(ctx context.Context, objectID string) error
	Restore(ctx context.Context, objectID string) error
	Eliminate(ctx context.Context, objectID string) error
	ListOwn(ctx context.Context, actor models.Actor, parentID *string, page models.Page) ([]*models.Object, error)
	ListShared(ctx context.Context, actor models.Actor, parentID *string, page models.Page) ([]*models.Object, error)
	ListTrash(ctx context.Context, actor models.Actor, page models.Page) ([]*models.Object, error)
}

// AccessService is the subset of *services.AccessService used by the handlers.
type AccessService interface {
	Grant(ctx context.Context, actor models.Actor, objectID, recipientEmail string, caps models.Capabilities) (*models.Grant, error)
	Revoke(ctx context.Context, actor models.Actor, objectID, recipientID string) error
	ListGrants(ctx context.Context, objectID string) ([]*models.Grant, error)
	Require(ctx context.Context, userID, objectID string, capability models.Capability) error
}

// RetrievalService issues download links.
type RetrievalService interface {
	DownloadURL(ctx context.Context, objectID string) (*models.DownloadURL, error)
}

type Server struct {
	address   string
	echo      *echo.Echo
	objects   ObjectService
	access    AccessService
	retrieval RetrievalService
	metrics   *metrics.Metrics
	logger    logging.Logger
	jwtSecret []byte
}

func NewServer(address, secretKey string, o ObjectService, a AccessService, r RetrievalService,
	m *metrics.Metrics, l logging.Logger) *Server {
	s := &Server{
		address:   address,
		echo:      echo.New(),
		objects:   o,
		access:    a,
		retrieval: r,
		metrics:   m,
		logger:    l.With("module", "rest"),
		jwtSecret: []byte(secretKey),
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) setupRoutes() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug(c.Request().Context(), "request",
				"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency.String())
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	api := e.Group("/api/v1/objects", s.bearerAuth)

	api.POST("/files", s.uploadFile)
	api.POST("/folders", s.createFolder)
	api.GET("/own", s.listOwn)
	api.GET("/shared", s.listShared)
	api.GET("/trash", s.listTrash)

	api.POST("/:id/trash", s.trash, s.requireOn(models.CapDelete))
	api.POST("/:id/restore", s.restore, s.requireOn(models.CapDelete))
	api.DELETE("/:id", s.eliminate, s.requireOn(models.CapDelete))
	api.GET("/:id/download", s.download, s.requireOn(models.CapRead))

	api.GET("/:id/access", s.listGrants, s.requireOn(models.CapRead))
	api.POST("/:id/access", s.grant, s.requireOn(models.CapEdit))
	api.DELETE("/:id/access/:user_id", s.revoke, s.requireOn(models.CapEdit))
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// drain discards what is left of a request body so the connection can be reused.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}
