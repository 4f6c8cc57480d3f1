// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Defaults for Connect.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultMaxConns       = 10
	initialBackoff        = 250 * time.Millisecond
	maxBackoff            = 5 * time.Second
)

// pinger is the part of the pool waitForDB needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// DB wraps a pgx pool.
type DB struct {
	pool *pgxpool.Pool
}

// ConnectOptions tunes Connect. Zero values select the defaults.
type ConnectOptions struct {
	Timeout  time.Duration
	MaxConns int32
	Logger   *slog.Logger
}

// Connect opens a pool against dsn and waits until the database answers a
// ping, backing off exponentially until opts.Timeout elapses.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*DB, error) {
	if dsn == "" {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("database URL is not configured")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultConnectTimeout
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = DefaultMaxConns
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	cfg.MaxConns = opts.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	if err := waitForDB(ctx, pool, newBackoff(opts.Timeout), opts.Logger); err != nil {
		pool.Close()
		return nil, err
	}
	opts.Logger.Info("database connected",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
		"max_conns", cfg.MaxConns)
	return &DB{pool: pool}, nil
}

func newBackoff(limit time.Duration) retry.Backoff {
	b := retry.NewExponential(initialBackoff)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithMaxDuration(limit, b)
}

// waitForDB pings until success, the backoff gives up, or ctx ends.
func waitForDB(ctx context.Context, db pinger, b retry.Backoff, logger *slog.Logger) error {
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			logger.Debug("database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return nil
}

// Pool exposes the underlying pool to repositories.
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close releases all pooled connections.
func (d *DB) Close() {
	d.pool.Close()
}
