// Package server initializes and runs the capture server. It wires the
// session registry, object storage, relay hub, duplicate engine and
// confirmation service behind the HTTP API and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/config"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/dedup"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/httpapi"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/ocr"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/relay"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/repositories/repomanager"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/services"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/sessions"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/storage"
)

// openDB is a seam for tests.
var openDB = sql.Open

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	registry *sessions.Registry
	relay    *relay.Server
	http     *httpapi.Server
}

// NewApp validates c, connects to the database, applies migrations and wires
// every component.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := openDB("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	store, objects, err := buildStore(ctx, c, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	registry := sessions.NewRegistry(c.SessionTTL,
		sessions.WithGrace(c.SessionGrace),
		sessions.WithLogger(logger.With("module", "sessions")))

	hub := relay.NewHub(logger.With("module", "hub"))
	rs := relay.NewServer(hub, registry, relay.ServerConfig{
		MaxFrameBytes: c.MaxFrameBytes,
		FrameRate:     c.RelayPublishRate,
	}, logger)

	engine := dedup.NewEngine(repos.Fingerprints(db), repos.Documents(db),
		c.ImageHashThreshold, c.TextSimilarityThreshold, logger.With("module", "dedup"))

	confirm := services.NewConfirmService(services.ConfirmDeps{
		DB:        db,
		Repos:     repos,
		Store:     store,
		Sessions:  registry,
		Events:    hub,
		Checker:   engine,
		OCR:       ocr.New(c.OCREndpoint),
		DeferMode: c.DeferMode,
		Logger:    logger,
	})

	api := httpapi.NewServer(c.HTTPAddr, httpapi.Deps{
		Sessions: registry,
		Uploads:  services.NewUploadService(registry, store, c.PresignTTL, logger),
		Status:   services.NewStatusService(registry),
		Confirm:  confirm,
		Relay:    rs.Handler(),
		Objects:  objects,
	}, logger)

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		registry: registry,
		relay:    rs,
		http:     api,
	}, nil
}

// buildStore picks the configured backend. The local backend also returns
// the gateway handler that must be mounted under /objects/.
func buildStore(ctx context.Context, c *config.Config, logger logging.Logger) (storage.Store, http.Handler, error) {
	switch c.StorageBackend {
	case config.StorageS3:
		s, err := storage.NewS3Store(ctx, storage.S3Config{
			User:          c.S3RootUser,
			Password:      c.S3RootPassword,
			Bucket:        c.S3Bucket,
			Region:        c.S3Region,
			BaseEndpoint:  c.S3BaseEndpoint,
			PublicBaseURL: c.S3PublicBaseURL,
		})
		return s, nil, err
	case config.StorageLocal:
		s, err := storage.NewLocalStore(c.LocalStorageDir, c.PublicBaseURL, c.SecretKey, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
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

// Run serves until a signal arrives or a component fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "address", app.config.HTTPAddr, "storage", app.config.StorageBackend)
	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.http.Run(ctx)
	})
	g.Go(func() error {
		app.registry.Run(ctx, app.config.SweepInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		app.relay.Close()
		return nil
	})

	err := g.Wait()
	if cerr := app.db.Close(); cerr != nil {
		app.logger.Error(ctx, "db close", "error", cerr)
	}
	app.logger.Info(ctx, "Stopped")
	return err
}
