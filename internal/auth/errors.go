// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Repository sentinels. Implementations wrap these with oops context.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when a user with the same email already exists.
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrAdminExists is returned when the administrator bootstrap has already happened.
	ErrAdminExists = errors.New("admin already exists")
)

// Token verification results.
var (
	// ErrTokenInvalid is returned for tokens that are malformed, carry a bad
	// signature or fail claim validation.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired is returned for correctly signed tokens past their expiry.
	// The user ID is still reported so the session row can be cleaned up.
	ErrTokenExpired = errors.New("token expired")
)

// Error codes attached to every error the Service returns.
const (
	CodeValidation           = "AUTH_VALIDATION"
	CodeInvalidCredentials   = "AUTH_INVALID_CREDENTIALS"
	CodeRegistrationDisabled = "AUTH_REGISTRATION_DISABLED"
	CodeDuplicateEmail       = "AUTH_DUPLICATE_EMAIL"
	CodeAdminExists          = "AUTH_ADMIN_EXISTS"
	CodeUnauthenticated      = "AUTH_UNAUTHENTICATED"
	CodeForbidden            = "AUTH_FORBIDDEN"
	CodeConfigInvalid        = "AUTH_CONFIG_INVALID"
	CodeStoreFailed          = "AUTH_STORE_FAILED"
)

// User-facing messages. The credential message is shared by the unknown-email
// and wrong-password paths.
const (
	MsgInvalidCredentials   = "Invalid email or password"
	MsgRegistrationDisabled = "Registration is currently disabled"
	MsgDuplicateEmail       = "User with this email already exists"
	MsgAdminExists          = "Admin user already exists"
	MsgInvalidSession       = "Invalid or expired token"
)

// ErrorCode returns the oops code carried by err, or "" when it has none.
// Repositories attach context but no code, so the code seen here is the one
// the Service assigned.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
