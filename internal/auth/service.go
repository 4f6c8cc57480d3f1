// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authcore/pkg/errutil"
)

// Operation names reported to the Recorder.
const (
	OpRegister        = "register"
	OpLogin           = "login"
	OpVerifySession   = "verify_session"
	OpLogout          = "logout"
	OpSetRegistration = "set_registration"
	OpCreateAdmin     = "create_admin"
)

// Operation results reported to the Recorder.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// TokenManager issues and verifies signed session tokens.
type TokenManager interface {
	Issue(userID int64) (token string, expiresAt time.Time, err error)
	// Verify returns ErrTokenExpired with the user ID for signed tokens past
	// their expiry and ErrTokenInvalid for anything else that fails.
	Verify(token string) (userID int64, err error)
}

// Recorder receives one observation per completed service operation.
type Recorder interface {
	RecordAuthOperation(operation, result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthOperation(string, string) {}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *PublicUser
}

// Service provides authentication operations.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	settings SettingsRepository
	hasher   PasswordHasher
	tokens   TokenManager

	logger   *slog.Logger
	now      func() time.Time
	recorder Recorder

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for store and best-effort failures.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used for session expiry.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRecorder sets the operation recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewService creates a new Service.
// Returns an error if any required dependency is nil.
func NewService(
	users UserRepository,
	sessions SessionRepository,
	settings SettingsRepository,
	hasher PasswordHasher,
	tokens TokenManager,
	opts ...ServiceOption,
) (*Service, error) {
	if users == nil {
		return nil, oops.Code(CodeConfigInvalid).Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Code(CodeConfigInvalid).Errorf("session repository is required")
	}
	if settings == nil {
		return nil, oops.Code(CodeConfigInvalid).Errorf("settings repository is required")
	}
	if hasher == nil {
		return nil, oops.Code(CodeConfigInvalid).Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code(CodeConfigInvalid).Errorf("token manager is required")
	}

	s := &Service{
		users:    users,
		sessions: sessions,
		settings: settings,
		hasher:   hasher,
		tokens:   tokens,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a user with role "user" when registration is enabled.
func (s *Service) Register(ctx context.Context, email, password, name string) (_ *PublicUser, err error) {
	defer func() { s.record(OpRegister, err) }()

	allowed, err := s.GetRegistrationSetting(ctx)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, oops.Code(CodeRegistrationDisabled).
			Public(MsgRegistrationDisabled).
			Errorf("registration is disabled")
	}

	if email == "" || password == "" || name == "" {
		return nil, oops.Code(CodeValidation).Errorf("Email, password, and name are required")
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, duplicateEmailError(email)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, s.storeError("get user by email", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(email, hash, name, RoleUser, false)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration can win between the lookup and the insert.
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, duplicateEmailError(email)
		}
		return nil, s.storeError("create user", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user.Public(), nil
}

// Login authenticates an active user and creates a fresh session.
// Unknown email, inactive user and wrong password are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (_ *LoginResult, err error) {
	defer func() { s.record(OpLogin, err) }()

	if email == "" || password == "" {
		return nil, oops.Code(CodeValidation).Errorf("Email and password are required")
	}

	user, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, s.storeError("get active user by email", err)
		}
		// Still pay for a verification so unknown emails take as long as bad passwords.
		s.hasher.Verify(password, s.dummyPasswordHash())
		return nil, invalidCredentialsError()
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, invalidCredentialsError()
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, oops.With("operation", "issue token").With("user_id", user.ID).Wrap(err)
	}

	session, err := NewSession(user.ID, token, expiresAt)
	if err != nil {
		return nil, oops.With("operation", "build session").Wrap(err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, s.storeError("create session", err)
	}

	s.upgradeHash(ctx, user, password)

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Public(),
	}, nil
}

// VerifySession resolves a token into the public projection of its user.
// The signature is checked first; only then is the session row consulted.
// Expired sessions are deleted on the way out.
func (s *Service) VerifySession(ctx context.Context, token string) (_ *PublicUser, err error) {
	defer func() { s.record(OpVerifySession, err) }()

	userID, verifyErr := s.tokens.Verify(token)
	expired := errors.Is(verifyErr, ErrTokenExpired)
	if verifyErr != nil && !expired {
		return nil, unauthenticatedError()
	}

	tokenHash := HashSessionToken(token)
	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unauthenticatedError()
		}
		return nil, s.storeError("get session by token hash", err)
	}
	if session.User == nil || session.UserID != userID {
		return nil, unauthenticatedError()
	}

	if expired || session.IsExpiredAt(s.now()) {
		if err := s.sessions.DeleteByTokenHash(ctx, tokenHash); err != nil {
			errutil.LogError(s.logger, "failed to delete expired session", err)
		}
		return nil, unauthenticatedError()
	}

	return session.User.Public(), nil
}

// Logout deletes the session for the token. It does not report whether a
// session existed.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	defer func() { s.record(OpLogout, err) }()

	if token == "" {
		return oops.Code(CodeValidation).Errorf("Token is required")
	}
	if err := s.sessions.DeleteByTokenHash(ctx, HashSessionToken(token)); err != nil {
		return s.storeError("delete session", err)
	}
	return nil
}

// GetRegistrationSetting reports whether self-registration is enabled.
// A setting that was never written reads as disabled.
func (s *Service) GetRegistrationSetting(ctx context.Context) (bool, error) {
	enabled, err := s.settings.GetFlag(ctx, RegistrationSettingKey)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.storeError("get registration setting", err)
	}
	return enabled, nil
}

// SetRegistrationSetting enables or disables self-registration and returns
// the stored value.
func (s *Service) SetRegistrationSetting(ctx context.Context, enabled bool) (_ bool, err error) {
	defer func() { s.record(OpSetRegistration, err) }()

	if err := s.settings.SetFlag(ctx, RegistrationSettingKey, enabled); err != nil {
		return false, s.storeError("set registration setting", err)
	}
	s.logger.InfoContext(ctx, "registration setting changed", "enabled", enabled)
	return enabled, nil
}

// AdminExists reports whether any user holds the admin role.
func (s *Service) AdminExists(ctx context.Context) (bool, error) {
	exists, err := s.users.ExistsWithRole(ctx, RoleAdmin)
	if err != nil {
		return false, s.storeError("check admin exists", err)
	}
	return exists, nil
}

// CreateAdminUser bootstraps the first administrator. It ignores the
// registration setting and succeeds at most once.
func (s *Service) CreateAdminUser(ctx context.Context, email, password, name string) (_ *PublicUser, err error) {
	defer func() { s.record(OpCreateAdmin, err) }()

	if email == "" || password == "" || name == "" {
		return nil, oops.Code(CodeValidation).Errorf("Email, password, and name are required")
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateAdminPassword(password); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	exists, err := s.AdminExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, adminExistsError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(email, hash, name, RoleAdmin, true)
	if err != nil {
		return nil, err
	}
	if err := s.users.CreateBootstrapAdmin(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrAdminExists):
			return nil, adminExistsError()
		case errors.Is(err, ErrDuplicateEmail):
			return nil, duplicateEmailError(email)
		default:
			return nil, s.storeError("create bootstrap admin", err)
		}
	}

	s.logger.InfoContext(ctx, "admin user created", "user_id", user.ID)
	return user.Public(), nil
}

// RevokeUserSessions deletes every session belonging to the user.
func (s *Service) RevokeUserSessions(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, oops.Code(CodeValidation).With("user_id", userID).Errorf("user ID must be positive")
	}
	n, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, s.storeError("delete sessions by user", err)
	}
	s.logger.InfoContext(ctx, "revoked user sessions", "user_id", userID, "count", n)
	return n, nil
}

// PruneExpiredSessions deletes every session that has expired.
func (s *Service) PruneExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, s.storeError("delete expired sessions", err)
	}
	s.logger.InfoContext(ctx, "pruned expired sessions", "count", n)
	return n, nil
}

func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogError(s.logger, "failed to rehash password", err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		errutil.LogError(s.logger, "failed to store upgraded password hash", err)
		return
	}
	s.logger.DebugContext(ctx, "upgraded password hash", "user_id", user.ID)
}

// dummyPasswordHash returns a real hash of a random secret, computed once
// with the configured hasher so a failed lookup costs a full verification.
func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		secret := make([]byte, 16)
		_, _ = rand.Read(secret) //nolint:errcheck // crypto/rand.Read never fails
		hash, err := s.hasher.Hash(hex.EncodeToString(secret))
		if err != nil {
			errutil.LogError(s.logger, "failed to compute dummy password hash", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *Service) storeError(operation string, err error) error {
	wrapped := oops.Code(CodeStoreFailed).With("operation", operation).Wrap(err)
	errutil.LogError(s.logger, "auth store operation failed", wrapped)
	return wrapped
}

func (s *Service) record(operation string, err error) {
	result := ResultSuccess
	if err != nil {
		switch ErrorCode(err) {
		case CodeValidation, CodeInvalidCredentials, CodeRegistrationDisabled,
			CodeDuplicateEmail, CodeAdminExists, CodeUnauthenticated, CodeForbidden:
			result = ResultFailure
		default:
			result = ResultError
		}
	}
	s.recorder.RecordAuthOperation(operation, result)
}

func invalidCredentialsError() error {
	return oops.Code(CodeInvalidCredentials).
		Public(MsgInvalidCredentials).
		Errorf("invalid email or password")
}

func unauthenticatedError() error {
	return oops.Code(CodeUnauthenticated).
		Public(MsgInvalidSession).
		Errorf("invalid or expired token")
}

func duplicateEmailError(email string) error {
	return oops.Code(CodeDuplicateEmail).
		Public(MsgDuplicateEmail).
		With("email", email).
		Wrap(ErrDuplicateEmail)
}

func adminExistsError() error {
	return oops.Code(CodeAdminExists).
		Public(MsgAdminExists).
		Wrap(ErrAdminExists)
}
