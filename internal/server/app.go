// Package server wires the API server: database and migrations, object store,
// broker, services, the REST transport and the pending-upload sweeper.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/flaxvault/internal/blobstore"
	"github.com/dmitrijs2005/flaxvault/internal/filex"
	"github.com/dmitrijs2005/flaxvault/internal/logging"
	"github.com/dmitrijs2005/flaxvault/internal/metrics"
	"github.com/dmitrijs2005/flaxvault/internal/queue"
	"github.com/dmitrijs2005/flaxvault/internal/server/config"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/flaxvault/internal/server/rest"
	"github.com/dmitrijs2005/flaxvault/internal/server/services"
	"golang.org/x/sync/errgroup"
)

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
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the HTTP server and the sweeper and blocks until a signal
// arrives or one of them fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
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

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	client, presigner, err := blobstore.NewClients(ctx, blobstore.ClientConfig{
		Region:       app.config.S3Region,
		AccessKey:    app.config.S3RootUser,
		SecretKey:    app.config.S3RootPassword,
		BaseEndpoint: app.config.S3BaseEndpoint,
	})
	if err != nil {
		return fmt.Errorf("object store init error: %w", err)
	}
	store := blobstore.New(client, presigner, blobstore.WithLogger(app.logger))

	broker, err := queue.Dial(app.config.AMQPURL, app.logger)
	if err != nil {
		return fmt.Errorf("broker init error: %w", err)
	}
	defer broker.Close()

	objects := services.NewObjectService(db, rm, queue.NewEventPublisher(broker), app.config, app.metrics, app.logger)
	access := services.NewAccessService(db, rm, app.logger)
	retrieval := services.NewRetrievalService(db, rm, store, app.config, app.metrics, app.logger)

	srv := rest.NewServer(app.config.HTTPAddr, app.config.SecretKey, objects, access, retrieval, app.metrics, app.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return objects.RunSweeper(gctx, app.config.PendingSweepInterval, app.config.PendingGracePeriod)
	})

	err = g.Wait()
	app.logger.Info(ctx, "App stopped")
	return err
}
