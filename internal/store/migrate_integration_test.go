// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/accounts/internal/store"
)

var _ = Describe("Accounts schema", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		dsn       string
		pool      *pgxpool.Pool
		migrator  *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("accounts_test"),
			postgres.WithUsername("accounts"),
			postgres.WithPassword("accounts"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		pool, err = store.Open(ctx, dsn, store.DefaultPoolConfig())
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(dsn)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			_ = migrator.Close()
		}
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("starts at version zero with everything pending", func() {
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Current).To(BeZero())
		Expect(status.Pending).NotTo(BeEmpty())
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Pending).To(BeEmpty())
		Expect(status.Dirty).To(BeFalse())
	})

	It("rejects a second account with the same email", func() {
		_, err := pool.Exec(ctx, `INSERT INTO accounts (id, name, email, password_hash) VALUES ('a', 'A', 'dup@x.com', 'h')`)
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(ctx, `INSERT INTO accounts (id, name, email, password_hash) VALUES ('b', 'B', 'dup@x.com', 'h')`)
		Expect(err).To(HaveOccurred())
	})

	It("allows many accounts without a pending reset", func() {
		_, err := pool.Exec(ctx, `INSERT INTO accounts (id, name, email, password_hash) VALUES ('c', 'C', 'c@x.com', 'h')`)
		Expect(err).NotTo(HaveOccurred())

		var nulls int
		Expect(pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE reset_token IS NULL`).Scan(&nulls)).To(Succeed())
		Expect(nulls).To(BeNumerically(">=", 2))
	})

	It("defaults new rows to inactive users", func() {
		var role string
		var active bool
		Expect(pool.QueryRow(ctx, `SELECT role, active FROM accounts WHERE id = 'c'`).Scan(&role, &active)).To(Succeed())
		Expect(role).To(Equal("user"))
		Expect(active).To(BeFalse())
	})

	It("steps back and forward", func() {
		before, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())

		Expect(migrator.Steps(-1)).To(Succeed())
		v, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(before - 1))

		Expect(migrator.Steps(1)).To(Succeed())
		v, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(before))
	})

	It("rolls everything back", func() {
		Expect(migrator.Down()).To(Succeed())
		v, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeZero())
	})
})
