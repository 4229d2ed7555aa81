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

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/postgres"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/health"
	"github.com/holomush/accounts/internal/httpapi"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the accounts HTTP API",
		Long: `Run the accounts HTTP API together with the metrics and health
server. SIGINT or SIGTERM drains in-flight requests and exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd, true)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}
}

// runServeWithDeps runs the API until ctx is canceled or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.withDefaults()

	if err := setupLogging(cfg, cmd); err != nil {
		return err
	}
	logger := slog.Default()
	logger.Info("starting accounts service",
		"http_addr", cfg.HTTP.Addr,
		"notifier", cfg.Notifier.Mode,
	)

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, cfg.PoolConfig())
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	notifier, closeNotifier, err := deps.NotifierFactory(cfg, logger)
	if err != nil {
		return oops.Code("NOTIFIER_INIT_FAILED").With("mode", cfg.Notifier.Mode).Wrap(err)
	}
	defer closeNotifier()

	checker := health.NewChecker().Add("postgres", health.PostgresCheck(pool))
	if cfg.Notifier.Mode == config.NotifierQueue {
		rdb := redis.NewClient(cfg.RedisOptions())
		defer func() { _ = rdb.Close() }()
		checker.Add("redis", health.RedisCheck(rdb))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	serviceOpts := []auth.Option{auth.WithLogger(logger)}
	routerCfg := httpapi.Config{
		Logger:       logger,
		AllowedHosts: cfg.HTTP.AllowedHosts,
		Development:  cfg.HTTP.Development,
	}
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, checker.Ready)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		if m := obsServer.Metrics(); m != nil {
			serviceOpts = append(serviceOpts, auth.WithRecorder(m))
			routerCfg.Metrics = m
		}
	}
	defer func() {
		if obsServer == nil {
			return
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := obsServer.Stop(stopCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}()

	svc, err := newAuthService(cfg, postgres.NewAccountRepository(pool), notifier, serviceOpts...)
	if err != nil {
		return err
	}
	routerCfg.Service = svc

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	httpSrv := &http.Server{
		Handler:           httpapi.NewRouter(routerCfg),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeout),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeout),
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	apiAddr := listener.Addr().String()
	cmd.Println("Accounts API listening on " + apiAddr)
	logger.Info("accounts service ready", "http_addr", apiAddr)
	deps.Started(apiAddr)

	var runErr error
	select {
	case err := <-serveErr:
		if err != nil {
			runErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownTimeout))
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error draining HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

// newAuthService assembles the Auth Service from configuration.
func newAuthService(cfg config.Config, accounts auth.AccountRepository, notifier auth.Notifier, opts ...auth.Option) (*auth.Service, error) {
	hasher, err := auth.NewBoundedHasher(auth.NewArgon2idHasher(), cfg.Auth.HashConcurrency)
	if err != nil {
		return nil, oops.Code("HASHER_INIT_FAILED").Wrap(err)
	}
	codec, err := auth.NewJWTCodec([]byte(cfg.Auth.SigningSecret), auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return nil, oops.Code("TOKEN_CODEC_INIT_FAILED").Wrap(err)
	}
	svc, err := auth.NewService(accounts, hasher, codec, notifier, cfg.AuthConfig(), opts...)
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").Wrap(err)
	}
	return svc, nil
}

// monitorServerErrors cancels ctx when a background server reports a failure.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return
		}
		slog.Error("server error, triggering shutdown",
			"server", serverName,
			"error", err,
		)
		cancel()
	case <-ctx.Done():
	}
}
