// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/internal/xdg"
)

// serviceName identifies this process in logs.
const serviceName = "accounts"

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configFile string
}

// NewRootCmd creates the root command for the accounts CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Account credential lifecycle service",
		Long: `accounts registers users, activates them by mail link, signs them in
with JWT session tokens and runs the forgot/reset password flow.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/accounts/accounts.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(opts))
	cmd.AddCommand(NewWorkerCmd(opts))
	cmd.AddCommand(NewMigrateCmd(opts))
	cmd.AddCommand(NewStatusCmd(opts))
	cmd.AddCommand(NewConfigCmd(opts))

	return cmd
}

// loadConfig resolves the configuration for cmd. Without --config, the XDG
// default file is used when present. validate is false for commands
// that only inspect configuration.
func (o *rootOptions) loadConfig(cmd *cobra.Command, validate bool) (config.Config, error) {
	path := o.configFile
	if path == "" {
		found, err := xdg.FindConfigFile()
		if err != nil {
			return config.Config{}, err
		}
		path = found
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// setupLogging installs the default logger described by cfg.
func setupLogging(cfg config.Config, cmd *cobra.Command) error {
	level, err := cfg.LogLevel()
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}
	logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})
	return nil
}
