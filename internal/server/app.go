// Package server wires the CrewClock server: it opens PostgreSQL, applies
// migrations, connects photo storage and runs the HTTP API next to the gRPC
// health endpoint until a shutdown signal arrives.
package server

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/server/config"
	"github.com/dmitrijs2005/crewclock/internal/server/httpapi"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/crewclock/internal/server/services"
	"github.com/dmitrijs2005/crewclock/internal/server/storage"

	gs "github.com/dmitrijs2005/crewclock/internal/server/grpc"
)

const (
	healthCheckInterval  = 15 * time.Second
	tokenCleanupInterval = time.Hour
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	httpServer  *httpapi.Server
	grpcServer  *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	var key ed25519.PublicKey
	if c.LicensePublicKey != "" {
		k, err := license.ParsePublicKey(c.LicensePublicKey)
		if err != nil {
			return nil, fmt.Errorf("license public key: %w", err)
		}
		key = k
	} else {
		logger.Warn(ctx, "no license public key configured, license checks are disabled")
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	photos, err := storage.NewS3Store(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("photo storage init error: %w", err)
	}

	licenses := services.NewLicenseService(db, rm, key, logger.With("module", "licenses"))
	deps := httpapi.Deps{
		Users:    services.NewUserService(db, rm, licenses, c, logger.With("module", "users")),
		Sync:     services.NewSyncService(db, rm, photos, logger.With("module", "sync")),
		Licenses: licenses,
		Photos:   services.NewPhotoService(db, rm, photos, c.PhotoURLValidity),
		Admin:    services.NewAdminService(db, rm, logger.With("module", "admin")),
	}

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		repomanager: rm,
		httpServer:  httpapi.NewServer(c.HTTPAddr, logger, deps, c.SecretKey, c.AdminToken),
		grpcServer:  gs.NewGRPCServer(c.GRPCAddr, logger),
	}, nil
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

// runServer runs one listener and cancels the whole app if it fails.
func (app *App) runServer(ctx context.Context, cancelFunc context.CancelFunc, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// checkHealth reports NOT_SERVING over gRPC while the database is down so
// devices stay in offline mode.
func (app *App) checkHealth(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := app.db.PingContext(pingCtx)
	if err != nil {
		app.logger.Warn(ctx, "database unreachable", "error", err)
	}
	app.grpcServer.SetServing(err == nil)
}

func (app *App) cleanupTokens(ctx context.Context, now time.Time) {
	n, err := app.repomanager.RefreshTokens(app.db).DeleteExpired(ctx, now)
	if err != nil {
		app.logger.Warn(ctx, "refresh token cleanup", "error", err)
		return
	}
	if n > 0 {
		app.logger.Info(ctx, "expired refresh tokens removed", "count", n)
	}
}

func (app *App) runMaintenance(ctx context.Context) {
	health := time.NewTicker(healthCheckInterval)
	defer health.Stop()
	cleanup := time.NewTicker(tokenCleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-health.C:
			app.checkHealth(ctx)
		case t := <-cleanup.C:
			app.cleanupTokens(ctx, t)
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.runServer(ctx, cancelFunc, app.grpcServer.Run)
	}()
	go func() {
		defer wg.Done()
		app.runServer(ctx, cancelFunc, app.httpServer.Run)
	}()
	go func() {
		defer wg.Done()
		app.runMaintenance(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
