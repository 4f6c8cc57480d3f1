// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/postgres"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/store"
	"github.com/holomush/authcore/internal/web"
	"github.com/holomush/authcore/pkg/errutil"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func newServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP API that serves login, logout, token verification,
registration and admin bootstrap, plus the metrics and health server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd, cfg, deps)
		},
	}
}

// runServe blocks until the context is cancelled, a signal arrives or a
// server fails.
func runServe(cmd *cobra.Command, cfg config.Config, deps *Deps) error {
	if err := cfg.RequireSecret(); err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	logger, err := setupLogging(cmd, cfg)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if err := autoMigrate(deps, cfg.DatabaseURL, logger); err != nil {
			return err
		}
	}

	db, err := deps.Connect(ctx, cfg.DatabaseURL, store.ConnectOptions{
		Timeout: cfg.ConnectTimeout,
		Logger:  logger,
	})
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	var (
		authRecorder auth.Recorder
		httpRecorder web.HTTPRecorder
		obsServer    ObservabilityServer
		obsErrChan   <-chan error
	)
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, db.Ping, logger)
		obsErrChan, err = obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer stopServer(logger, "observability", obsServer.Stop)
		if m := obsServer.Metrics(); m != nil {
			authRecorder, httpRecorder = m, m
		}
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	svc, err := newAuthService(db.Pool(), tokens, cfg, logger, authRecorder)
	if err != nil {
		return err
	}

	router, err := web.NewRouter(web.Options{
		Service:        svc,
		Logger:         logger,
		Metrics:        httpRecorder,
		CookieSecure:   cfg.CookieSecure,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		return err
	}

	listener, err := deps.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
	}
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	httpErrChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrChan <- serveErr
		}
		close(httpErrChan)
	}()
	defer stopServer(logger, "http", httpServer.Shutdown)

	cmd.Println("authcore listening on " + listener.Addr().String())
	logger.Info("api server listening", "addr", listener.Addr().String())

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err, ok := <-httpErrChan:
		if !ok {
			return nil
		}
		return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	case err, ok := <-obsErrChan:
		if !ok {
			return nil
		}
		return oops.With("operation", "observability server").Wrap(err)
	}
}

func stopServer(logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		errutil.LogWarn(ctx, logger, "error stopping "+name+" server", err)
	}
}

// autoMigrate applies pending migrations before the pool is opened.
func autoMigrate(deps *Deps, databaseURL string, logger *slog.Logger) (err error) {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			errutil.LogWarn(context.Background(), logger, "failed to close migrator", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

// newAuthService wires the PostgreSQL repositories into an auth.Service.
func newAuthService(
	pool *pgxpool.Pool,
	tokens auth.TokenManager,
	cfg config.Config,
	logger *slog.Logger,
	rec auth.Recorder,
) (*auth.Service, error) {
	return auth.NewService(
		postgres.NewUserRepository(pool),
		postgres.NewSessionRepository(pool),
		postgres.NewSettingsRepository(pool),
		auth.NewBcryptHasher(cfg.BcryptCost),
		tokens,
		auth.WithLogger(logger),
		auth.WithRecorder(rec),
	)
}
