// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every secret environment variable.
const EnvPrefix = "ACCOUNTS"

// secrets are read from the environment and override any file value.
type secrets struct {
	SigningSecret string `envconfig:"SIGNING_SECRET"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	SMTPUsername  string `envconfig:"SMTP_USERNAME"`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"notifier":     "notifier.mode",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "accounts API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty to disable)")
	fs.String("log-format", d.Log.Format, "log format (json, text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("notifier", d.Notifier.Mode, "mail delivery mode (smtp, queue)")
}

// Load builds the configuration. path may be empty; flags may be nil. Only
// flags the user actually set override the file. The result is not validated.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return Config{}, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return Config{}, oops.With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	var s secrets
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}
	s.apply(&cfg)
	return cfg, nil
}

func (s secrets) apply(cfg *Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Auth.SigningSecret, s.SigningSecret)
	set(&cfg.Database.URL, s.DatabaseURL)
	set(&cfg.SMTP.Username, s.SMTPUsername)
	set(&cfg.SMTP.Password, s.SMTPPassword)
	set(&cfg.Redis.Password, s.RedisPassword)
}
