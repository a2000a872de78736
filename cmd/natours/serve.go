// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/auth/postgres"
	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/internal/mail"
	"github.com/natours/natours/internal/observability"
	"github.com/natours/natours/internal/ratelimit"
	"github.com/natours/natours/internal/store"
	"github.com/natours/natours/internal/web"
	"github.com/natours/natours/pkg/errutil"
)

// shutdownTimeout bounds graceful shutdown of both listeners.
const shutdownTimeout = 15 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API and, unless disabled, the metrics and health
listener. Migrations must already be applied (see 'natours migrate up').`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps runs the API until a signal arrives, ctx ends or a server
// fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = connectPool
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(c web.ServerConfig, h http.Handler) APIServer {
			return web.NewServer(c, h)
		}
	}
	if deps.RedisFactory == nil {
		deps.RedisFactory = func(c config.RedisConfig) RedisClient {
			return redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
		}
	}
	if err := cfg.ValidateServe(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger := setupLogging(cfg)
	logger.Info("starting natours",
		"env", cfg.Env,
		"http_addr", cfg.HTTP.Addr,
		"log_format", cfg.Log.Format,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := deps.PoolFactory(ctx, cfg.Database, logger)
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// The observability server owns the metrics registry, so it is built
	// first even when its listener stays off.
	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, pool.Ping)
	metrics := obsServer.Metrics()

	svc, err := buildService(cfg, pool, metrics, logger)
	if err != nil {
		return err
	}

	var limiter web.Limiter
	if cfg.Redis.Addr != "" {
		rdb := deps.RedisFactory(cfg.Redis)
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				logger.Debug("error closing redis client", "error", closeErr)
			}
		}()
		l, err := ratelimit.New(rdb, cfg.RateLimit.Limit, cfg.RateLimit.Period)
		if err != nil {
			return oops.With("operation", "create rate limiter").Wrap(err)
		}
		limiter = l
		logger.Info("rate limiting enabled", "limit", cfg.RateLimit.Limit, "period", cfg.RateLimit.Period)
	}

	handler := web.NewRouter(web.RouterConfig{
		Service: svc,
		Sessions: web.SessionWriter{
			CookieName: cfg.Auth.CookieName,
			CookieTTL:  time.Duration(cfg.Auth.CookieDays) * 24 * time.Hour,
			Secure:     cfg.IsProduction(),
		},
		Logger:            logger,
		PublicURL:         cfg.HTTP.PublicURL,
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		RequestTimeout:    cfg.HTTP.RequestTimeout,
		Development:       !cfg.IsProduction(),
		TrustProxyHeaders: cfg.HTTP.TrustProxyHeaders,
		Limiter:           limiter,
		Metrics:           metrics,
	})

	apiServer := deps.APIServerFactory(web.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, handler)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	obsStarted := false
	if cfg.Metrics.Addr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			stopWithTimeout(logger, "api", apiServer.Stop)
			return oops.With("operation", "start observability server").Wrap(err)
		}
		obsStarted = true
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Natours API listening on " + apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	stopWithTimeout(logger, "api", apiServer.Stop)
	if obsStarted {
		stopWithTimeout(logger, "observability", obsServer.Stop)
	}

	logger.Info("shutdown complete")
	return nil
}

// buildService assembles the auth service over the Postgres repository.
func buildService(cfg *config.Config, pool Pool, metrics *observability.Metrics, logger *slog.Logger) (*auth.Service, error) {
	hasher, err := auth.NewArgon2idHasher(cfg.Auth.Hash)
	if err != nil {
		return nil, oops.With("operation", "create password hasher").Wrap(err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
		TTL:    cfg.Auth.TokenTTL,
	})
	if err != nil {
		return nil, oops.With("operation", "create token issuer").Wrap(err)
	}
	mailer, err := buildMailer(cfg, metrics, logger)
	if err != nil {
		return nil, err
	}

	svc, err := auth.NewService(auth.ServiceConfig{
		Users:         postgres.NewUserRepository(pool),
		Hasher:        hasher,
		Tokens:        tokens,
		Mailer:        mailer,
		ResetTokenTTL: cfg.Auth.ResetTokenTTL,
		Events:        metrics,
		Logger:        logger.With("component", "auth"),
	})
	if err != nil {
		return nil, oops.With("operation", "create auth service").Wrap(err)
	}
	return svc, nil
}

// buildMailer sends over SMTP when a host is configured and logs otherwise.
func buildMailer(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (auth.Mailer, error) {
	mailLogger := logger.With("component", "mail")
	if cfg.SMTP.Host == "" {
		mailLogger.Warn("smtp not configured, emails will be logged instead of sent")
		return mail.NewLogMailer(mailLogger), nil
	}
	m, err := mail.NewSMTPMailer(mail.Config{
		Host:          cfg.SMTP.Host,
		Port:          cfg.SMTP.Port,
		Username:      cfg.SMTP.Username,
		Password:      cfg.SMTP.Password,
		From:          cfg.SMTP.From,
		ResetValidity: cfg.Auth.ResetTokenTTL,
	}, mailLogger, metrics)
	if err != nil {
		return nil, oops.With("operation", "create mailer").Wrap(err)
	}
	return m, nil
}

func connectPool(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Pool, error) {
	opts := store.DefaultConnectOptions()
	if cfg.ConnectRetries > 0 {
		opts.MaxRetries = cfg.ConnectRetries
	}
	if cfg.MaxConns > 0 {
		opts.MaxConns = cfg.MaxConns
	}
	pool, err := store.Connect(ctx, cfg.URL, opts, logger)
	if err != nil {
		return nil, err //nolint:wrapcheck // already coded by store
	}
	return pool, nil
}

// monitorServerErrors cancels ctx when a server reports a failure.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errChan <-chan error, name string) {
	select {
	case <-ctx.Done():
	case err, ok := <-errChan:
		if ok && err != nil {
			errutil.LogError(ctx, slog.Default(), "server failed", oops.With("server", name).Wrap(err))
			cancel()
		}
	}
}

func stopWithTimeout(logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}
