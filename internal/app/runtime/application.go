// Package runtime assembles the marketplace daemon: configuration, database,
// the application core, and the HTTP server lifecycle.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/Ayush4178/NFT-Marketplace/internal/app"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/market"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/httpapi"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage/memory"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage/postgres"
	"github.com/Ayush4178/NFT-Marketplace/internal/config"
	"github.com/Ayush4178/NFT-Marketplace/internal/platform/migrations"
	"github.com/Ayush4178/NFT-Marketplace/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	core       *app.Application
	httpServer *http.Server
	db         *sql.DB
}

// NewApplication constructs the daemon from the config file at path (empty
// path means defaults plus environment).
func NewApplication(path string) (*Application, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Component: "marketd",
	})

	stores, db, err := buildStores(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	core, err := app.New(stores, app.Options{
		Admin:  asset.Account(cfg.Market.Admin),
		Escrow: asset.Account(cfg.Market.Escrow),
	}, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	if err := seedFeeConfig(stores.Fees, cfg.Market.DefaultFeeBasisPoints); err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("seed fee config: %w", err)
	}

	handler := httpapi.NewHandler(core)
	if cfg.Server.RateLimit.Enabled {
		limiter := httpapi.NewRateLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
		handler = limiter.Handler(handler)
	}

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		core:       core,
		httpServer: httpSrv,
		db:         db,
	}, nil
}

// Core exposes the wired application, mainly for integration tests.
func (a *Application) Core() *app.Application { return a.core }

// Run starts the background services and the HTTP server, then blocks until
// the context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.core.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, the background services, and
// the database.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := a.core.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func buildStores(cfg *config.Config) (app.Stores, *sql.DB, error) {
	if cfg.Database.URL == "" {
		mem := memory.New()
		return app.Stores{
			Listings: mem,
			Fees:     mem,
			Treasury: mem,
			Events:   mem,
		}, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return app.Stores{}, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := postgres.New(sqlx.NewDb(db, "postgres"))
	return app.Stores{
		Listings: store,
		Fees:     store,
		Treasury: store,
		Events:   store,
	}, db, nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// seedFeeConfig writes the configured starting fee rate when the store holds
// no rate yet. An already-configured store wins over the config file.
func seedFeeConfig(fees storage.FeeStore, basisPoints uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	existing, err := fees.GetFeeConfig(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err == nil && !existing.UpdatedAt.IsZero() {
		return nil
	}
	if basisPoints == 0 {
		return nil
	}

	_, err = fees.SetFeeConfig(ctx, market.FeeConfig{
		BasisPoints: basisPoints,
		UpdatedAt:   time.Now().UTC(),
	})
	return err
}
