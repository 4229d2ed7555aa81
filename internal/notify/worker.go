// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

// WorkerConfig tunes the mail worker.
type WorkerConfig struct {
	Concurrency     int
	ShutdownTimeout time.Duration
}

// Worker delivers queued mail:send tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewWorker creates a worker that hands every task to delivery, normally an SMTPNotifier.
func NewWorker(redis asynq.RedisConnOpt, cfg WorkerConfig, delivery auth.Notifier, logger *slog.Logger) (*Worker, error) {
	if delivery == nil {
		return nil, oops.Errorf("delivery notifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{QueueMail: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          asynqLogger{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.WarnContext(ctx, "mail task failed",
				"type", task.Type(),
				"retry", retried,
				"max_retry", maxRetry,
				"error", err,
			)
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSendMail, HandleSendMail(delivery))

	return &Worker{server: srv, mux: mux, logger: logger}, nil
}

// Run processes tasks until ctx is canceled, then drains in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return oops.Code("WORKER_START_FAILED").Wrap(err)
	}
	w.logger.InfoContext(ctx, "mail worker started", "queue", QueueMail)

	<-ctx.Done()
	w.logger.Info("mail worker stopping")
	w.server.Shutdown()
	return nil
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct {
	l *slog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...), "component", "asynq") }

// Fatal logs at error level. asynq exits the process itself after calling it.
func (a asynqLogger) Fatal(args ...any) { a.l.Error(fmt.Sprint(args...), "component", "asynq", "fatal", true) }
