// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/pkg/errutil"
)

func TestRootCommand_Help(t *testing.T) {
	out, err := executeRoot(t, "--help")
	require.NoError(t, err)

	for _, want := range []string{"serve", "worker", "migrate", "status", "config", "--config", "--http-addr", "--log-format", "--notifier"} {
		assert.Contains(t, out, want)
	}
}

func TestConfigCommand_PrintsRedactedConfig(t *testing.T) {
	t.Setenv("ACCOUNTS_SIGNING_SECRET", testSecret)
	t.Setenv("ACCOUNTS_DATABASE_URL", "postgres://accounts:dbpw@db:5432/accounts")
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":8080\"\n"), 0o600))

	out, err := executeRoot(t, "config", "--config", path, "--log-level", "debug", "--validate")
	require.NoError(t, err)

	assert.NotContains(t, out, testSecret)
	assert.NotContains(t, out, "dbpw")

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "[redacted]", cfg.Auth.SigningSecret)
}

func TestConfigCommand_ValidateFails(t *testing.T) {
	t.Setenv("ACCOUNTS_SIGNING_SECRET", "")
	t.Setenv("ACCOUNTS_DATABASE_URL", "")

	_, err := executeRoot(t, "config")
	require.NoError(t, err, "printing does not require a complete configuration")

	_, err = executeRoot(t, "config", "--validate")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestServeCommand_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("ACCOUNTS_SIGNING_SECRET", "too-short")
	t.Setenv("ACCOUNTS_DATABASE_URL", "postgres://db/accounts")

	_, err := executeRoot(t, "serve")
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "field", "auth.signing_secret")
}

func TestConfigCommand_UsesXDGDefaultFile(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "accounts")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts.yaml"), []byte("log:\n  format: text\n"), 0o600))

	out, err := executeRootIn(t, base, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "format: text")

	out, err = executeRootIn(t, t.TempDir(), "config")
	require.NoError(t, err)
	assert.Contains(t, out, "format: json")
}
