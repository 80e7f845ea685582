// Package server initializes and runs the file storage application:
// database pool, migrations, blob backend selection, services and the
// HTTP endpoint, with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/avezhov/filestorage/internal/logging"
	"github.com/avezhov/filestorage/internal/server/blob"
	"github.com/avezhov/filestorage/internal/server/config"
	"github.com/avezhov/filestorage/internal/server/httpapi"
	"github.com/avezhov/filestorage/internal/server/repositories/repomanager"
	"github.com/avezhov/filestorage/internal/server/services"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	httpServer *httpapi.Server
}

func NewApp(c *config.Config) (*App, error) {

	l := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(l)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	blobs, err := newBlobStore(c, logger)
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	userService := services.NewUserService(db, repos, c.SecretKey, c.AccessTokenValidityDuration, logger)
	fileService := services.NewFileService(db, repos, blobs, logger)

	httpServer := httpapi.NewServer(c.EndpointAddrHTTP, userService, fileService, db, logger)

	return &App{config: c, logger: logger, db: db, httpServer: httpServer}, nil
}

func newBlobStore(c *config.Config, logger logging.Logger) (blob.Store, error) {
	switch c.BlobBackend {
	case config.BlobBackendDisk:
		return blob.NewDiskStore(c.StorageRoot, logger)
	case config.BlobBackendS3:
		return blob.NewS3Store(c)
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", c.BlobBackend)
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

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.httpServer.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
