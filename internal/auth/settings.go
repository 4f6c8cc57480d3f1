// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// RegistrationSettingKey is the site setting that gates self-service registration.
const RegistrationSettingKey = "allow_registration"

// SettingsRepository stores boolean site settings.
type SettingsRepository interface {
	// GetFlag returns the value of a setting.
	// Returns ErrNotFound if the setting has never been written.
	GetFlag(ctx context.Context, key string) (bool, error)

	// SetFlag creates or replaces a setting.
	SetFlag(ctx context.Context, key string, enabled bool) error
}
