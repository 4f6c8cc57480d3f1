// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authcore settings from defaults, an optional YAML
// file, a .env file, the environment and command-line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/authcore/internal/auth"
)

// EnvPrefix namespaces authcore environment variables.
const EnvPrefix = "AUTHCORE_"

// DefaultEnvFile is read when LoadOptions.EnvFile is empty.
const DefaultEnvFile = ".env"

// Config holds every authcore setting.
type Config struct {
	DatabaseURL        string        `koanf:"database_url" json:"database_url,omitempty" jsonschema:"description=PostgreSQL connection URL"`
	JWTSecret          string        `koanf:"jwt_secret" json:"jwt_secret,omitempty" jsonschema:"description=HMAC secret used to sign session tokens"`
	HTTPAddr           string        `koanf:"http_addr" json:"http_addr,omitempty" jsonschema:"description=API listen address"`
	MetricsAddr        string        `koanf:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=Metrics and health listen address; empty disables"`
	LogFormat          string        `koanf:"log_format" json:"log_format,omitempty" jsonschema:"enum=json,enum=text"`
	LogLevel           string        `koanf:"log_level" json:"log_level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	BcryptCost         int           `koanf:"bcrypt_cost" json:"bcrypt_cost,omitempty" jsonschema:"minimum=10,maximum=31"`
	CookieSecure       bool          `koanf:"cookie_secure" json:"cookie_secure,omitempty" jsonschema:"description=Mark the auth_token cookie Secure"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins" json:"cors_allowed_origins,omitempty" jsonschema:"description=Glob patterns of allowed browser origins"`
	AutoMigrate        bool          `koanf:"auto_migrate" json:"auto_migrate,omitempty" jsonschema:"description=Apply pending migrations before serving"`
	ConnectTimeout     time.Duration `koanf:"connect_timeout" json:"connect_timeout,omitempty" jsonschema:"type=string,pattern=^([0-9]+([.][0-9]+)?(ns|us|ms|s|m|h))+$"`
}

// Default returns the built-in settings. DatabaseURL and JWTSecret have no
// default.
func Default() Config {
	return Config{
		HTTPAddr:       ":8080",
		MetricsAddr:    "127.0.0.1:9100",
		LogFormat:      "json",
		LogLevel:       "info",
		BcryptCost:     auth.DefaultBcryptCost,
		ConnectTimeout: 30 * time.Second,
	}
}

func (c Config) asMap() map[string]any {
	return map[string]any{
		"database_url":         c.DatabaseURL,
		"jwt_secret":           c.JWTSecret,
		"http_addr":            c.HTTPAddr,
		"metrics_addr":         c.MetricsAddr,
		"log_format":           c.LogFormat,
		"log_level":            c.LogLevel,
		"bcrypt_cost":          c.BcryptCost,
		"cookie_secure":        c.CookieSecure,
		"cors_allowed_origins": c.CORSAllowedOrigins,
		"auto_migrate":         c.AutoMigrate,
		"connect_timeout":      c.ConnectTimeout.String(),
	}
}

// knownKey reports whether key is a Config setting.
func knownKey(key string) bool {
	_, ok := Default().asMap()[key]
	return ok
}

// Validate checks enums and ranges. Secrets and the database URL are checked
// by RequireSecret and RequireDatabase, since not every command needs them.
func (c Config) Validate() error {
	switch c.LogFormat {
	case "json", "text":
	default:
		return invalid("log_format", "log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level", "log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	if c.BcryptCost < auth.MinBcryptCost || c.BcryptCost > bcrypt.MaxCost {
		return invalid("bcrypt_cost", "bcrypt_cost must be between %d and %d, got %d",
			auth.MinBcryptCost, bcrypt.MaxCost, c.BcryptCost)
	}
	if c.HTTPAddr == "" {
		return invalid("http_addr", "http_addr is required")
	}
	if c.ConnectTimeout <= 0 {
		return invalid("connect_timeout", "connect_timeout must be positive, got %s", c.ConnectTimeout)
	}
	return nil
}

// RequireSecret fails when no token signing secret is configured.
func (c Config) RequireSecret() error {
	if c.JWTSecret == "" {
		return invalid("jwt_secret", "jwt_secret is required (set %sJWT_SECRET or JWT_SECRET)", EnvPrefix)
	}
	return nil
}

// RequireDatabase fails when no database URL is configured.
func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return invalid("database_url", "database_url is required (set %sDATABASE_URL or DATABASE_URL)", EnvPrefix)
	}
	return nil
}

func invalid(setting, format string, args ...any) error {
	return oops.Code(auth.CodeConfigInvalid).With("setting", setting).Errorf(format, args...)
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// ConfigFile is an optional YAML file. It is validated against the
	// generated schema before it is merged.
	ConfigFile string
	// EnvFile is loaded into the process environment if it exists. Variables
	// already set are not overridden.
	EnvFile string
	// Flags are merged last; only flags the user changed override earlier
	// sources.
	Flags *pflag.FlagSet
}

// Load merges all sources and validates the result.
func Load(opts LoadOptions) (Config, error) {
	k := koanf.New(".")
	for key, val := range Default().asMap() {
		if err := k.Set(key, val); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if opts.ConfigFile != "" {
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.ConfigFile).Wrap(err)
		}
		if err := ValidateSchema(data); err != nil {
			return Config{}, oops.Code(auth.CodeConfigInvalid).With("file", opts.ConfigFile).Wrap(err)
		}
		if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.ConfigFile).Wrap(err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("file", envFile).Wrap(err)
	}

	// Unprefixed names first so AUTHCORE_* wins when both are set.
	if err := k.Load(env.ProviderWithValue("", ".", compatEnv), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", prefixedEnv), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey(opts.Flags)), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code(auth.CodeConfigInvalid).Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func compatEnv(key, value string) (string, any) {
	switch key {
	case "DATABASE_URL":
		return "database_url", value
	case "JWT_SECRET":
		return "jwt_secret", value
	}
	return "", nil
}

func prefixedEnv(key, value string) (string, any) {
	name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if !knownKey(name) {
		return "", nil
	}
	if name == "cors_allowed_origins" {
		return name, splitList(value)
	}
	return name, value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// flagKey maps --http-addr style flag names to setting keys and skips
// flags that are not settings, such as --config.
func flagKey(fs *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !knownKey(key) {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}
