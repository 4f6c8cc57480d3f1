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

const userColumns = `id, email, password_hash, name, role, is_active, email_verified, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user and assigns its ID.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	return r.insert(ctx, r.pool, user)
}

// adminBootstrapLockKey identifies the transaction-scoped advisory lock
// that serializes admin bootstraps. The value spells "authcore".
const adminBootstrapLockKey int64 = 0x61757468636f7265

// CreateBootstrapAdmin stores the first administrator. Bootstraps serialize
// on an advisory lock held until commit, so the admin check of a waiting
// bootstrap sees the user a finished one inserted.
func (r *UserRepository) CreateBootstrapAdmin(ctx context.Context, user *auth.User) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.With("operation", "begin bootstrap transaction").Wrap(err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, adminBootstrapLockKey); err != nil {
		rollback(ctx, tx)
		return oops.With("operation", "lock admin bootstrap").Wrap(err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)`, string(auth.RoleAdmin),
	).Scan(&exists); err != nil {
		rollback(ctx, tx)
		return oops.With("operation", "check existing admin").Wrap(err)
	}
	if exists {
		rollback(ctx, tx)
		return oops.With("operation", "check existing admin").Wrap(auth.ErrAdminExists)
	}

	if err := r.insert(ctx, tx, user); err != nil {
		rollback(ctx, tx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.With("operation", "commit bootstrap transaction").Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get user by id").With("id", id).Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get user by email").Wrap(err)
	}
	return user, nil
}

// GetActiveByEmail retrieves an active user by exact email.
func (r *UserRepository) GetActiveByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND is_active`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get active user by email").Wrap(err)
	}
	return user, nil
}

// ExistsWithRole reports whether any user holds the role.
func (r *UserRepository) ExistsWithRole(ctx context.Context, role auth.Role) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)`, string(role),
	).Scan(&exists)
	if err != nil {
		return false, oops.With("operation", "check role exists").With("role", string(role)).Wrap(err)
	}
	return exists, nil
}

// UpdatePasswordHash replaces only the password hash for a user.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now())
	if err != nil {
		return oops.With("operation", "update password hash").With("id", id).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *UserRepository) insert(ctx context.Context, q queryRower, user *auth.User) error {
	err := q.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, role, is_active, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		user.Email,
		user.PasswordHash,
		user.Name,
		string(user.Role),
		user.IsActive,
		user.EmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if isUniqueViolation(err, constraintUsersEmail) {
		return oops.With("operation", "insert user").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.With("operation", "insert user").Wrap(err)
	}
	return nil
}

// rollback aborts tx after a failed statement. The original error is what
// callers need, so a rollback failure is dropped.
func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx) //nolint:errcheck // original error takes precedence
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user auth.User
		role string
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&role,
		&user.IsActive,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.With("operation", "scan user").Wrap(err)
	}

	user.Role = auth.Role(role)
	if !user.Role.Valid() {
		return nil, oops.With("operation", "scan user").
			With("id", user.ID).
			Errorf("stored role %q is not recognized", role)
	}
	return &user, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
