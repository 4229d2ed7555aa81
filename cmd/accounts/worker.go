// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/notify"
)

// NewWorkerCmd creates the worker subcommand.
func NewWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued mail",
		Long: `Run the mail worker. In queue mode the API enqueues activation and
reset mails in Redis; the worker sends them over SMTP and retries failures.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd, true)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWorkerWithDeps(ctx, cfg, cmd, nil)
		},
	}
}

func runWorkerWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *WorkerDeps) error {
	if deps == nil {
		deps = &WorkerDeps{}
	}
	deps.withDefaults()

	if cfg.Redis.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("field", "redis.addr").Errorf("the worker requires a redis address")
	}
	if err := setupLogging(cfg, cmd); err != nil {
		return err
	}
	logger := slog.Default().With("component", "mail-worker")

	smtp, err := notify.NewSMTPNotifier(cfg.SMTPConfig(), logger)
	if err != nil {
		return oops.Code("NOTIFIER_INIT_FAILED").With("mode", config.NotifierSMTP).Wrap(err)
	}
	worker, err := deps.WorkerFactory(cfg.AsynqRedis(), cfg.WorkerConfig(), smtp, logger)
	if err != nil {
		return oops.Code("WORKER_INIT_FAILED").Wrap(err)
	}

	cmd.Println("Mail worker started")
	logger.Info("mail worker started",
		"redis_addr", cfg.Redis.Addr,
		"concurrency", cfg.Worker.Concurrency,
	)
	if err := worker.Run(ctx); err != nil {
		return err
	}
	logger.Info("mail worker stopped")
	return nil
}
