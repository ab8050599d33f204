package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/blobstore"
	"github.com/dmitrijs2005/flaxvault/internal/filex"
	"github.com/dmitrijs2005/flaxvault/internal/logging"
	"github.com/dmitrijs2005/flaxvault/internal/metrics"
	"github.com/dmitrijs2005/flaxvault/internal/queue"
	"github.com/dmitrijs2005/flaxvault/internal/server/config"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/repomanager"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewApp(c *config.Config) *App {
	return &App{
		config:  c,
		logger:  logging.NewJSONLogger(logging.ParseLevel(c.LogLevel)),
		metrics: metrics.New(),
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run wires the database, object store and broker, then consumes both work
// queues until a signal arrives or a consumer fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting worker...")
	app.initSignalHandler(cancelFunc)

	stagingDir, err := filex.EnsureDir(app.config.StagingDir)
	if err != nil {
		return fmt.Errorf("staging dir: %w", err)
	}
	app.config.StagingDir = stagingDir

	db, err := repomanager.OpenDB(ctx, app.config.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	client, _, err := blobstore.NewClients(ctx, blobstore.ClientConfig{
		Region:       app.config.S3Region,
		AccessKey:    app.config.S3RootUser,
		SecretKey:    app.config.S3RootPassword,
		BaseEndpoint: app.config.S3BaseEndpoint,
	})
	if err != nil {
		return fmt.Errorf("object store init error: %w", err)
	}
	store := blobstore.New(client, nil, blobstore.WithLogger(app.logger))

	broker, err := queue.Dial(app.config.AMQPURL, app.logger)
	if err != nil {
		return fmt.Errorf("broker init error: %w", err)
	}
	defer broker.Close()

	proc := NewProcessor(db, repomanager.NewPostgresRepositoryManager(), store, app.config, app.metrics, app.logger)

	g, gctx := errgroup.WithContext(ctx)

	for _, b := range queue.Bindings {
		deliveries, ch, err := broker.Consume(b.Queue, "flaxvault-worker-"+b.Queue)
		if err != nil {
			return err
		}
		c := NewConsumer(b.Queue, proc, broker, app.config, app.metrics, app.logger)

		g.Go(func() error {
			defer ch.Close()
			return c.Run(gctx, deliveries)
		})
	}

	g.Go(func() error {
		return app.serveMetrics(gctx)
	})

	err = g.Wait()
	app.logger.Info(ctx, "Worker stopped")
	return err
}

// serveMetrics exposes /metrics and /healthz on MetricsAddr.
func (app *App) serveMetrics(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(app.metrics.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Serving metrics", "address", app.config.MetricsAddr)
	if err := e.Start(app.config.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
