// Package server initializes and runs the fellis backend: database and
// migrations, media storage, the background import workers, the retention
// sweeper, and the HTTP server, with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fellis.eu/internal/config"
	"fellis.eu/internal/cryptox"
	"fellis.eu/internal/facebook"
	"fellis.eu/internal/httpapi"
	"fellis.eu/internal/logging"
	"fellis.eu/internal/media"
	"fellis.eu/internal/obs"
	"fellis.eu/internal/repositories/repomanager"
	"fellis.eu/internal/services"
)

const oauthStateTTL = 10 * time.Minute

// App owns the wired components and their shared lifecycle.
type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	handler   http.Handler
	runner    *services.Runner
	retention *services.RetentionService
}

// NewApp wires the whole server from config: storage, services, background
// workers, and the HTTP surface.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	obs.Init()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := newMediaStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("media store init error: %w", err)
	}

	vault := cryptox.NewVault(cfg.VaultKey)
	if vault.Passthrough() {
		logger.Warn(ctx, "vault key not configured, external tokens will be stored unencrypted")
	}

	fb := facebook.NewClient(cfg.FacebookAppID, cfg.FacebookAppSecret, cfg.FacebookRedirectURL, cfg.FacebookAPIBase)
	states := facebook.NewStateStore(oauthStateTTL)

	auditSvc := services.NewAuditService(db, rm, logger)
	consentSvc := services.NewConsentService(db, rm, auditSvc, logger)
	accountSvc := services.NewAccountService(db, rm, cfg, auditSvc, logger)
	connectSvc := services.NewConnectService(db, rm, fb, vault, auditSvc, logger)
	importSvc := services.NewImportService(db, rm, fb, store, vault, auditSvc, logger)
	erasureSvc := services.NewErasureService(db, rm, store, consentSvc, auditSvc, logger)
	exportSvc := services.NewExportService(db, rm)
	retentionSvc := services.NewRetentionService(db, rm, auditSvc, logger, cfg.SweepInterval)

	runner := services.NewRunner(importSvc, cfg.ImportWorkers, cfg.ImportQueueSize, logger)

	handlers := httpapi.NewHandlers(accountSvc, consentSvc, connectSvc, erasureSvc, exportSvc, runner, fb, states, logger)
	router := httpapi.NewRouter(handlers, []byte(cfg.SecretKey))

	return &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		handler:   router,
		runner:    runner,
		retention: retentionSvc,
	}, nil
}

func newMediaStore(ctx context.Context, cfg *config.Config) (media.Store, error) {
	if cfg.MediaBackend == "s3" {
		return media.NewS3Store(ctx, media.S3Config{
			BaseEndpoint: cfg.S3BaseEndpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3RootUser,
			SecretKey:    cfg.S3RootPassword,
		})
	}
	return media.NewLocalStore(cfg.MediaDir)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the background workers and the HTTP server and blocks until a
// shutdown signal arrives, then drains everything.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting server", "addr", app.config.Addr)

	app.initSignalHandler(cancelFunc)

	app.runner.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.retention.Run(ctx)
	}()

	srv := &http.Server{Addr: app.config.Addr, Handler: app.handler}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancelFunc()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "http shutdown error", "error", err)
	}

	app.runner.Wait()
	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}

	app.logger.Info(ctx, "server stopped")
	return runErr
}
