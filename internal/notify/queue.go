// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

const (
	// QueueMail is the asynq queue holding outbound mail.
	QueueMail = "mail"
	// TaskTypeSendMail is the asynq task type for one outbound message.
	TaskTypeSendMail = "mail:send"
)

// QueueConfig tunes enqueued mail tasks.
type QueueConfig struct {
	MaxRetry int
	Timeout  time.Duration
}

// DefaultQueueConfig returns the task defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{MaxRetry: 10, Timeout: 30 * time.Second}
}

// mailPayload is the JSON body of a mail:send task.
type mailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// NewSendMailTask wraps msg in an asynq task.
func NewSendMailTask(msg auth.Message) (*asynq.Task, error) {
	data, err := json.Marshal(mailPayload{To: msg.To, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return nil, oops.Code("MAIL_TASK_ENCODE_FAILED").Wrap(err)
	}
	return asynq.NewTask(TaskTypeSendMail, data), nil
}

// Enqueuer is the part of *asynq.Client the queue notifier uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier implements auth.Notifier by enqueueing a mail:send task.
// Send succeeds once the task is stored; the worker delivers it later.
type QueueNotifier struct {
	client Enqueuer
	cfg    QueueConfig
	logger *slog.Logger
}

// NewQueueNotifier creates a QueueNotifier.
func NewQueueNotifier(client Enqueuer, cfg QueueConfig, logger *slog.Logger) *QueueNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueNotifier{client: client, cfg: cfg, logger: logger}
}

// Send enqueues msg for delivery.
func (n *QueueNotifier) Send(ctx context.Context, msg auth.Message) error {
	task, err := NewSendMailTask(msg)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.Queue(QueueMail), asynq.MaxRetry(n.cfg.MaxRetry)}
	if n.cfg.Timeout > 0 {
		opts = append(opts, asynq.Timeout(n.cfg.Timeout))
	}
	info, err := n.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return oops.Code("MAIL_ENQUEUE_FAILED").With("subject", msg.Subject).Wrap(err)
	}
	n.logger.DebugContext(ctx, "mail enqueued", "task_id", info.ID, "subject", msg.Subject)
	return nil
}

// HandleSendMail returns the asynq handler that delivers mail:send tasks through n.
func HandleSendMail(n auth.Notifier) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p mailPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("decode mail task: %w: %w", err, asynq.SkipRetry)
		}
		if p.To == "" {
			return fmt.Errorf("mail task has no recipient: %w", asynq.SkipRetry)
		}
		return n.Send(ctx, auth.Message{To: p.To, Subject: p.Subject, HTML: p.HTML})
	}
}

var _ auth.Notifier = (*QueueNotifier)(nil)
