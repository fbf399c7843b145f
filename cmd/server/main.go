// Command topiclist-server serves the table and auth HTTP API on PostgreSQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/and161185/topiclist/internal/config"
	"github.com/and161185/topiclist/internal/limiter"
	"github.com/and161185/topiclist/internal/logging"
	"github.com/and161185/topiclist/internal/migrate"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/oauth/google"
	"github.com/and161185/topiclist/internal/repository/postgres"
	restserver "github.com/and161185/topiclist/internal/server/rest"
	"github.com/and161185/topiclist/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves HTTP until SIGINT/SIGTERM.
func main() {
	cfgPath := flag.String("config", "", "path to YAML config (default $CONFIG_PATH or ./config.yaml)")
	migrateOnly := flag.Bool("migrate-only", false, "apply migrations and exit")
	flag.Parse()

	cfg, err := config.LoadServer(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTP.Addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *migrateOnly); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Server, logger *zap.Logger, migrateOnly bool) error {
	if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	if migrateOnly {
		return nil
	}

	db, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	// Repositories
	userRepo := postgres.NewUserRepo(db)
	tableRepo := postgres.NewTableRepo(db)

	lim := limiter.NewPostgres(db.Pool, limiter.Config{
		Window:   cfg.Limiter.Window,
		MaxFails: cfg.Limiter.MaxFails,
		BlockFor: cfg.Limiter.BlockFor,
	})

	// Services
	authSvc := service.NewAuthService(userRepo, lim, service.AuthConfig{
		SignKey:      []byte(cfg.Auth.JWTSecret),
		AccessTTL:    cfg.Auth.AccessTTL,
		RefreshTTL:   cfg.Auth.RefreshTTL,
		SiteURL:      cfg.Auth.SiteURL,
		RedirectURLs: cfg.Auth.RedirectURLs,
	}, logger.Named("auth"))
	if cfg.Auth.GoogleEnabled() {
		authSvc.RegisterProvider(model.ProviderGoogle, google.New(google.Config{
			ClientID:     cfg.Auth.GoogleClientID,
			ClientSecret: cfg.Auth.GoogleClientSecret,
			RedirectURI:  cfg.Auth.GoogleRedirectURI,
		}, logger))
		logger.Info("google sign-in enabled")
	}
	tableSvc := service.NewTableService(tableRepo, tableRepo)

	api := restserver.New(restserver.Deps{Auth: authSvc, Tables: tableSvc, Health: db}, cfg.Auth.AnonKey, logger.Named("http"))
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
