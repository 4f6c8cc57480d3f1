// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Role is the closed set of user roles.
type Role string

// Supported roles.
const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleUser   Role = "user"
)

// ParseRole converts a stored role string into a Role.
// Unknown values are rejected rather than trusted.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleEditor, RoleUser:
		return r, nil
	default:
		return "", oops.Code(CodeValidation).With("role", s).Errorf("unknown role %q", s)
	}
}

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Validation constraints.
const (
	MinAdminPasswordLength = 8
	MaxNameLength          = 100
	MaxEmailLength         = 254
)

// emailRegex is intentionally loose: something@something.tld with no whitespace.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// User represents an account.
type User struct {
	ID            int64
	Email         string
	PasswordHash  string
	Name          string
	Role          Role
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PublicUser is the outward projection of a User. It never carries the password hash.
type PublicUser struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          Role   `json:"role"`
	IsActive      bool   `json:"isActive"`
	EmailVerified bool   `json:"emailVerified"`
}

// Public returns the public projection of the user.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
	}
}

// IsAdmin reports whether the user holds the admin role.
func (u *PublicUser) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NewUser creates a validated, active User. The ID is assigned by the repository.
func NewUser(email, passwordHash, name string, role Role, emailVerified bool) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, oops.Code(CodeValidation).With("role", string(role)).Errorf("unknown role %q", role)
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeValidation).Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		Email:         email,
		PasswordHash:  passwordHash,
		Name:          name,
		Role:          role,
		IsActive:      true,
		EmailVerified: emailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ValidateEmail checks that email is present and looks like an address.
// Case is preserved; lookups are case-sensitive.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeValidation).Errorf("email is required")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeValidation).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return oops.Code(CodeValidation).Errorf("Invalid email format")
	}
	return nil
}

// ValidateName checks that a display name is present and bounded.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return oops.Code(CodeValidation).Errorf("name is required")
	}
	if len(name) > MaxNameLength {
		return oops.Code(CodeValidation).
			With("max", MaxNameLength).
			Errorf("name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// ValidateAdminPassword applies the bootstrap password policy.
func ValidateAdminPassword(password string) error {
	if len(password) < MinAdminPasswordLength {
		return oops.Code(CodeValidation).
			With("min", MinAdminPasswordLength).
			Errorf("Password must be at least %d characters long", MinAdminPasswordLength)
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user and assigns its ID.
	// Returns ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, user *User) error

	// CreateBootstrapAdmin stores the first administrator. The admin check and
	// the insert are atomic with respect to other bootstraps. Returns
	// ErrAdminExists if any admin user exists, ErrDuplicateEmail if the email
	// is taken.
	CreateBootstrapAdmin(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByEmail retrieves a user by exact email, active or not.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetActiveByEmail retrieves an active user by exact email.
	// Inactive users are reported as ErrNotFound.
	GetActiveByEmail(ctx context.Context, email string) (*User, error)

	// ExistsWithRole reports whether any user holds the role.
	ExistsWithRole(ctx context.Context, role Role) (bool, error)

	// UpdatePasswordHash replaces only the password hash for a user.
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error
}
