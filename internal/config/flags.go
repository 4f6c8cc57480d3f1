// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"github.com/spf13/pflag"
)

// RegisterFlags adds a flag for every setting. Flag defaults mirror Default
// so --help shows real values; unchanged flags never override other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", d.DatabaseURL, "PostgreSQL connection URL")
	fs.String("jwt-secret", d.JWTSecret, "token signing secret (prefer the environment)")
	fs.String("http-addr", d.HTTPAddr, "API listen address")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.Int("bcrypt-cost", d.BcryptCost, "bcrypt work factor")
	fs.Bool("cookie-secure", d.CookieSecure, "mark the auth_token cookie Secure")
	fs.StringSlice("cors-allowed-origins", d.CORSAllowedOrigins, "allowed browser origins (glob patterns)")
	fs.Bool("auto-migrate", d.AutoMigrate, "apply pending migrations before serving")
	fs.Duration("connect-timeout", d.ConnectTimeout, "how long to wait for the database at startup")
}
