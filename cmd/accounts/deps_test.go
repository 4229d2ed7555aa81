// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// mockPool implements Pool for testing. Queries report no rows.
type mockPool struct {
	pingErr error

	mu     sync.Mutex
	closed bool
}

func (m *mockPool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockPool) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{err: pgx.ErrNoRows}
}

func (m *mockPool) Ping(context.Context) error { return m.pingErr }

func (m *mockPool) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockPool) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// mockNotifier implements auth.Notifier for testing.
type mockNotifier struct {
	mu   sync.Mutex
	sent []auth.Message
}

func (m *mockNotifier) Send(_ context.Context, msg auth.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// mockObservabilityServer implements ObservabilityServer for testing.
type mockObservabilityServer struct {
	startErr error
	metrics  *observability.Metrics
	stopped  bool
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	return make(chan error), nil
}

func (m *mockObservabilityServer) Stop(context.Context) error {
	m.stopped = true
	return nil
}

func (m *mockObservabilityServer) Addr() string { return "127.0.0.1:0" }

func (m *mockObservabilityServer) Metrics() *observability.Metrics { return m.metrics }

// mockWorker implements MailWorker for testing.
type mockWorker struct {
	runErr error
	ran    bool
}

func (m *mockWorker) Run(context.Context) error {
	m.ran = true
	return m.runErr
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Metrics.Addr = ""
	cfg.Database.URL = "postgres://accounts:pw@localhost:5432/accounts"
	cfg.Auth.SigningSecret = testSecret
	cfg.Auth.HashConcurrency = 1
	return cfg
}

// testCommand returns a command whose output lands in the returned buffer and
// restores the default logger when the test ends.
func testCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	out := new(bytes.Buffer)
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return cmd, out
}

func poolFactory(pool *mockPool, err error) func(context.Context, string, store.PoolConfig) (Pool, error) {
	return func(context.Context, string, store.PoolConfig) (Pool, error) {
		if err != nil {
			return nil, err
		}
		return pool, nil
	}
}

func notifierFactory(n auth.Notifier, err error) func(config.Config, *slog.Logger) (auth.Notifier, func(), error) {
	return func(config.Config, *slog.Logger) (auth.Notifier, func(), error) {
		return n, func() {}, err
	}
}

var errBoom = errors.New("boom")
