// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the accounts service configuration.
//
// Sources are layered, later ones winning: built-in defaults, a YAML file,
// explicitly set command-line flags, then secrets from ACCOUNTS_* environment
// variables.
package config

import (
	"log/slog"
	"net/url"
	"slices"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/notify"
	"github.com/holomush/accounts/internal/store"
)

// Notifier modes.
const (
	NotifierSMTP  = "smtp"
	NotifierQueue = "queue"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

const redacted = "[redacted]"

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Auth     AuthConfig     `koanf:"auth" yaml:"auth"`
	SMTP     SMTPConfig     `koanf:"smtp" yaml:"smtp"`
	Notifier NotifierConfig `koanf:"notifier" yaml:"notifier"`
	Redis    RedisConfig    `koanf:"redis" yaml:"redis"`
	Worker   WorkerConfig   `koanf:"worker" yaml:"worker"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string   `koanf:"addr" yaml:"addr" jsonschema:"description=Listen address of the accounts API"`
	ReadTimeout     Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	// AllowedHosts restricts the Host header when non-empty.
	AllowedHosts []string `koanf:"allowed_hosts" yaml:"allowed_hosts"`
	Development  bool     `koanf:"development" yaml:"development"`
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr" jsonschema:"description=Listen address for /metrics and health probes; empty disables it"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL            string `koanf:"url" yaml:"url"`
	MaxConns       int32  `koanf:"max_conns" yaml:"max_conns" jsonschema:"minimum=1"`
	ConnectRetries uint64 `koanf:"connect_retries" yaml:"connect_retries"`
}

// AuthConfig configures the account lifecycle.
type AuthConfig struct {
	SigningSecret       string   `koanf:"signing_secret" yaml:"signing_secret"`
	Issuer              string   `koanf:"issuer" yaml:"issuer"`
	ActivationTTL       Duration `koanf:"activation_ttl" yaml:"activation_ttl"`
	SessionTTL          Duration `koanf:"session_ttl" yaml:"session_ttl"`
	ResetTTL            Duration `koanf:"reset_ttl" yaml:"reset_ttl"`
	ActivationURL       string   `koanf:"activation_url" yaml:"activation_url"`
	ResetURL            string   `koanf:"reset_url" yaml:"reset_url"`
	DefaultRole         string   `koanf:"default_role" yaml:"default_role"`
	AllowedEmailDomains []string `koanf:"allowed_email_domains" yaml:"allowed_email_domains"`
	HashConcurrency     int64    `koanf:"hash_concurrency" yaml:"hash_concurrency" jsonschema:"minimum=1"`
}

// SMTPConfig configures outbound mail.
type SMTPConfig struct {
	Host      string   `koanf:"host" yaml:"host"`
	Port      int      `koanf:"port" yaml:"port" jsonschema:"minimum=1,maximum=65535"`
	Username  string   `koanf:"username" yaml:"username"`
	Password  string   `koanf:"password" yaml:"password"`
	From      string   `koanf:"from" yaml:"from"`
	TLSPolicy string   `koanf:"tls_policy" yaml:"tls_policy" jsonschema:"enum=mandatory,enum=opportunistic,enum=none"`
	Timeout   Duration `koanf:"timeout" yaml:"timeout"`
	Retries   uint64   `koanf:"retries" yaml:"retries"`
}

// NotifierConfig selects how mail leaves the API process.
type NotifierConfig struct {
	Mode     string `koanf:"mode" yaml:"mode" jsonschema:"enum=smtp,enum=queue"`
	MaxRetry int    `koanf:"max_retry" yaml:"max_retry" jsonschema:"minimum=0"`
}

// RedisConfig configures the mail queue backend.
type RedisConfig struct {
	Addr     string `koanf:"addr" yaml:"addr"`
	Password string `koanf:"password" yaml:"password"`
	DB       int    `koanf:"db" yaml:"db" jsonschema:"minimum=0"`
}

// WorkerConfig configures the mail worker.
type WorkerConfig struct {
	Concurrency     int      `koanf:"concurrency" yaml:"concurrency" jsonschema:"minimum=1"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	a := auth.DefaultConfig()
	s := notify.DefaultSMTPConfig()
	p := store.DefaultPoolConfig()
	q := notify.DefaultQueueConfig()
	return Config{
		HTTP: HTTPConfig{
			Addr:            "localhost:3001",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Metrics:  MetricsConfig{Addr: "localhost:9101"},
		Log:      LogConfig{Format: LogFormatJSON, Level: "info"},
		Database: DatabaseConfig{MaxConns: p.MaxConns, ConnectRetries: p.ConnectRetries},
		Auth: AuthConfig{
			Issuer:          "accounts",
			ActivationTTL:   Duration(a.ActivationTTL),
			SessionTTL:      Duration(a.SessionTTL),
			ResetTTL:        Duration(a.ResetTTL),
			ActivationURL:   a.ActivationURL,
			ResetURL:        a.ResetURL,
			DefaultRole:     a.DefaultRole,
			HashConcurrency: 4,
		},
		SMTP: SMTPConfig{
			Host:      s.Host,
			Port:      s.Port,
			From:      s.From,
			TLSPolicy: s.TLSPolicy,
			Timeout:   Duration(s.Timeout),
			Retries:   s.Retries,
		},
		Notifier: NotifierConfig{Mode: NotifierSMTP, MaxRetry: q.MaxRetry},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Worker:   WorkerConfig{Concurrency: 5, ShutdownTimeout: Duration(10 * time.Second)},
	}
}

// Validate checks the configuration as a whole.
func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "listen address is required")
	}
	if !slices.Contains([]string{LogFormatJSON, LogFormatText}, c.Log.Format) {
		return invalid("log.format", "must be json or text")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return invalid("database.url", "database url is required (ACCOUNTS_DATABASE_URL)")
	}
	if len(c.Auth.SigningSecret) < auth.MinSecretLength {
		return invalid("auth.signing_secret", "signing secret must be at least 32 bytes (ACCOUNTS_SIGNING_SECRET)")
	}
	if c.Auth.HashConcurrency <= 0 {
		return invalid("auth.hash_concurrency", "must be positive")
	}
	if err := c.AuthConfig().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "auth").Wrap(err)
	}
	if err := c.SMTPConfig().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "smtp").Wrap(err)
	}
	switch c.Notifier.Mode {
	case NotifierSMTP:
	case NotifierQueue:
		if c.Redis.Addr == "" {
			return invalid("redis.addr", "redis address is required in queue mode")
		}
	default:
		return invalid("notifier.mode", "must be smtp or queue")
	}
	return nil
}

func invalid(field, msg string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s: %s", field, msg)
}

// LogLevel parses Log.Level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, oops.Code("CONFIG_INVALID").With("field", "log.level").Wrap(err)
	}
	return level, nil
}

// AuthConfig returns the settings for auth.NewService.
func (c Config) AuthConfig() auth.Config {
	return auth.Config{
		ActivationTTL:       time.Duration(c.Auth.ActivationTTL),
		SessionTTL:          time.Duration(c.Auth.SessionTTL),
		ResetTTL:            time.Duration(c.Auth.ResetTTL),
		ActivationURL:       c.Auth.ActivationURL,
		ResetURL:            c.Auth.ResetURL,
		DefaultRole:         c.Auth.DefaultRole,
		AllowedEmailDomains: c.Auth.AllowedEmailDomains,
	}
}

// SMTPConfig returns the settings for notify.NewSMTPNotifier.
func (c Config) SMTPConfig() notify.SMTPConfig {
	base := notify.DefaultSMTPConfig()
	return notify.SMTPConfig{
		Host:      c.SMTP.Host,
		Port:      c.SMTP.Port,
		Username:  c.SMTP.Username,
		Password:  c.SMTP.Password,
		From:      c.SMTP.From,
		TLSPolicy: c.SMTP.TLSPolicy,
		Timeout:   time.Duration(c.SMTP.Timeout),
		Retries:   c.SMTP.Retries,
		RetryBase: base.RetryBase,
	}
}

// PoolConfig returns the settings for store.Open.
func (c Config) PoolConfig() store.PoolConfig {
	p := store.DefaultPoolConfig()
	p.MaxConns = c.Database.MaxConns
	p.ConnectRetries = c.Database.ConnectRetries
	return p
}

// QueueConfig returns the settings for notify.NewQueueNotifier.
func (c Config) QueueConfig() notify.QueueConfig {
	q := notify.DefaultQueueConfig()
	q.MaxRetry = c.Notifier.MaxRetry
	return q
}

// WorkerConfig returns the settings for notify.NewWorker.
func (c Config) WorkerConfig() notify.WorkerConfig {
	return notify.WorkerConfig{
		Concurrency:     c.Worker.Concurrency,
		ShutdownTimeout: time.Duration(c.Worker.ShutdownTimeout),
	}
}

// RedisOptions returns go-redis client options for the readiness check.
func (c Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// AsynqRedis returns the connection settings shared by the queue client and worker.
func (c Config) AsynqRedis() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// Redacted returns a copy safe to print: secrets are masked and the database
// URL loses its password.
func (c Config) Redacted() Config {
	out := c
	out.Auth.SigningSecret = mask(c.Auth.SigningSecret)
	out.SMTP.Password = mask(c.SMTP.Password)
	out.Redis.Password = mask(c.Redis.Password)
	if u, err := url.Parse(c.Database.URL); err == nil && u.User != nil {
		out.Database.URL = u.Redacted()
	} else if err != nil {
		out.Database.URL = mask(c.Database.URL)
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}
