// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

// SettingsRepository implements auth.SettingsRepository using PostgreSQL.
type SettingsRepository struct {
	pool poolIface
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(pool poolIface) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetFlag returns the value of a setting.
func (r *SettingsRepository) GetFlag(ctx context.Context, key string) (bool, error) {
	var enabled bool
	err := r.pool.QueryRow(ctx, `SELECT enabled FROM site_settings WHERE key = $1`, key).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, oops.With("key", key).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return false, oops.With("operation", "get setting").With("key", key).Wrap(err)
	}
	return enabled, nil
}

// SetFlag creates or replaces a setting in a single statement.
func (r *SettingsRepository) SetFlag(ctx context.Context, key string, enabled bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO site_settings (key, enabled, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at
	`, key, enabled, time.Now())
	if err != nil {
		return oops.With("operation", "set setting").With("key", key).Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.SettingsRepository = (*SettingsRepository)(nil)
