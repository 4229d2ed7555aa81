// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/hibiken/asynq"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/postgres"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/notify"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the database pool.
	// Default: store.Open
	PoolFactory func(ctx context.Context, dsn string, cfg store.PoolConfig) (Pool, error)

	// NotifierFactory builds the mail notifier for the configured mode. The
	// returned close function is always non-nil.
	// Default: newNotifier
	NotifierFactory func(cfg config.Config, logger *slog.Logger) (auth.Notifier, func(), error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// Started is called once the API is accepting connections.
	Started func(apiAddr string)
}

// WorkerDeps contains injectable dependencies for the worker command.
type WorkerDeps struct {
	// WorkerFactory creates the mail worker.
	// Default: notify.NewWorker
	WorkerFactory func(redis asynq.RedisConnOpt, cfg notify.WorkerConfig, delivery auth.Notifier, logger *slog.Logger) (MailWorker, error)
}

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	postgres.Querier
	Ping(ctx context.Context) error
	Close()
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// MailWorker wraps the methods used from notify.Worker.
type MailWorker interface {
	Run(ctx context.Context) error
}

func (d *ServeDeps) withDefaults() {
	if d.PoolFactory == nil {
		d.PoolFactory = func(ctx context.Context, dsn string, cfg store.PoolConfig) (Pool, error) {
			pool, err := store.Open(ctx, dsn, cfg)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if d.NotifierFactory == nil {
		d.NotifierFactory = newNotifier
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.ListenerFactory == nil {
		d.ListenerFactory = net.Listen
	}
	if d.Started == nil {
		d.Started = func(string) {}
	}
}

func (d *WorkerDeps) withDefaults() {
	if d.WorkerFactory == nil {
		d.WorkerFactory = func(redis asynq.RedisConnOpt, cfg notify.WorkerConfig, delivery auth.Notifier, logger *slog.Logger) (MailWorker, error) {
			w, err := notify.NewWorker(redis, cfg, delivery, logger)
			if err != nil {
				return nil, err
			}
			return w, nil
		}
	}
}

// newNotifier returns the SMTP notifier, or in queue mode an asynq-backed
// notifier whose client is released by the returned function.
func newNotifier(cfg config.Config, logger *slog.Logger) (auth.Notifier, func(), error) {
	if cfg.Notifier.Mode == config.NotifierQueue {
		client := asynq.NewClient(cfg.AsynqRedis())
		closeClient := func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close queue client", "error", err)
			}
		}
		return notify.NewQueueNotifier(client, cfg.QueueConfig(), logger), closeClient, nil
	}

	n, err := notify.NewSMTPNotifier(cfg.SMTPConfig(), logger)
	if err != nil {
		return nil, func() {}, err
	}
	return n, func() {}, nil
}
