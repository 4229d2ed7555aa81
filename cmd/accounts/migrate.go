// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/store"
)

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (store.MigrationStatus, error)
	Close() error
}

// migratorFactory opens a Migrator. Tests replace it.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the accounts database schema",
		Long: `Apply or roll back the embedded schema migrations. Without a
subcommand, all pending migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, migrateUp)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, opts, migrateUp)
			},
		},
		newMigrateDownCmd(opts),
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, opts, migrateStatus)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, opts, migrateVersion)
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Long: `Record VERSION as the current schema version and clear the dirty
flag. Use it to recover after a failed migration has been fixed by hand.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
				}
				return withMigrator(cmd, opts, func(cmd *cobra.Command, m Migrator) error {
					if err := m.Force(version); err != nil {
						return err
					}
					cmd.Printf("Schema version forced to %d\n", version)
					return nil
				})
			},
		},
	)
	return cmd
}

func newMigrateDownCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration (--all for every migration)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, func(cmd *cobra.Command, m Migrator) error {
				if all {
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("All migrations rolled back")
					return nil
				}
				if err := m.Steps(-1); err != nil {
					return err
				}
				cmd.Println("Rolled back one migration")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	return cmd
}

// withMigrator opens a Migrator from the configured database URL, runs fn and
// closes it.
func withMigrator(cmd *cobra.Command, opts *rootOptions, fn func(*cobra.Command, Migrator) error) (err error) {
	cfg, err := opts.loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("field", "database.url").
			Errorf("database url is required (ACCOUNTS_DATABASE_URL)")
	}

	m, err := migratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(cmd, m)
}

func migrateUp(cmd *cobra.Command, m Migrator) error {
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func migrateVersion(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("%d (dirty)\n", version)
		return nil
	}
	cmd.Printf("%d\n", version)
	return nil
}

func migrateStatus(cmd *cobra.Command, m Migrator) error {
	status, err := m.Status()
	if err != nil {
		return err
	}
	cmd.Printf("Current version: %d\n", status.Current)
	if status.Dirty {
		cmd.Println("State: dirty (fix the failed migration, then run 'accounts migrate force VERSION')")
	}
	cmd.Printf("Applied: %s\n", joinVersions(status.Applied))
	cmd.Printf("Pending: %s\n", joinVersions(status.Pending))
	return nil
}

func joinVersions(versions []uint) string {
	if len(versions) == 0 {
		return "none"
	}
	names := make([]string, len(versions))
	for i, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = strconv.FormatUint(uint64(v), 10)
		}
		names[i] = name
	}
	return strings.Join(names, ", ")
}
