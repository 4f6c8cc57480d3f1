// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/authcore/internal/auth"
)

// memUsers is an in-memory UserRepository.
type memUsers struct {
	mu        sync.Mutex
	nextID    int64
	byID      map[int64]*auth.User
	// raceLost makes CreateBootstrapAdmin behave as if a concurrent
	// bootstrap committed after the service's admin check.
	raceLost bool
	err      error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[int64]*auth.User)}
}

func (m *memUsers) Create(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(user)
}

func (m *memUsers) createLocked(user *auth.User) error {
	if m.err != nil {
		return m.err
	}
	for _, u := range m.byID {
		if u.Email == user.Email {
			return auth.ErrDuplicateEmail
		}
	}
	m.nextID++
	user.ID = m.nextID
	stored := *user
	m.byID[user.ID] = &stored
	return nil
}

func (m *memUsers) CreateBootstrapAdmin(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raceLost {
		return auth.ErrAdminExists
	}
	for _, u := range m.byID {
		if u.Role == auth.RoleAdmin {
			return auth.ErrAdminExists
		}
	}
	return m.createLocked(user)
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) GetActiveByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, err := m.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, auth.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) ExistsWithRole(_ context.Context, role auth.Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	for _, u := range m.byID {
		if u.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) setActive(id int64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].IsActive = active
}

func (m *memUsers) setRole(id int64, role auth.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].Role = role
}

// memSessions is an in-memory SessionRepository joined to memUsers.
type memSessions struct {
	mu        sync.Mutex
	users     *memUsers
	nextID    int64
	byHash    map[string]*auth.Session
	err       error
	deleteErr error
	lookups   int
}

func newMemSessions(users *memUsers) *memSessions {
	return &memSessions{users: users, byHash: make(map[string]*auth.Session)}
}

func (m *memSessions) Create(_ context.Context, s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.nextID++
	s.ID = m.nextID
	stored := *s
	m.byHash[s.TokenHash] = &stored
	return nil
}

func (m *memSessions) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	m.mu.Lock()
	m.lookups++
	if m.err != nil {
		m.mu.Unlock()
		return nil, m.err
	}
	s, ok := m.byHash[tokenHash]
	m.mu.Unlock()
	if !ok {
		return nil, auth.ErrNotFound
	}
	u, err := m.users.GetByID(ctx, s.UserID)
	if err != nil || !u.IsActive {
		return nil, auth.ErrNotFound
	}
	cp := *s
	cp.User = u
	return &cp, nil
}

func (m *memSessions) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.byHash, tokenHash)
	return nil
}

func (m *memSessions) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, s := range m.byHash {
		if s.UserID == userID {
			delete(m.byHash, h)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, s := range m.byHash {
		if s.IsExpiredAt(now) {
			delete(m.byHash, h)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) has(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byHash[auth.HashSessionToken(token)]
	return ok
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

func (m *memSessions) expire(token string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash[auth.HashSessionToken(token)].ExpiresAt = at
}

// memSettings is an in-memory SettingsRepository.
type memSettings struct {
	mu    sync.Mutex
	flags map[string]bool
	err   error
}

func newMemSettings() *memSettings {
	return &memSettings{flags: make(map[string]bool)}
}

func (m *memSettings) GetFlag(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	v, ok := m.flags[key]
	if !ok {
		return false, auth.ErrNotFound
	}
	return v, nil
}

func (m *memSettings) SetFlag(_ context.Context, key string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.flags[key] = enabled
	return nil
}

// plainHasher is a fast reversible PasswordHasher for service tests.
type plainHasher struct {
	mu     sync.Mutex
	hashes int
}

const plainPrefix = "plain$"

func (h *plainHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	h.mu.Lock()
	h.hashes++
	h.mu.Unlock()
	return plainPrefix + password, nil
}

func (h *plainHasher) Verify(password, hash string) bool {
	return strings.HasPrefix(hash, plainPrefix) && strings.TrimPrefix(hash, plainPrefix) == password
}

func (h *plainHasher) NeedsUpgrade(string) bool { return false }

// mockHasher is a testify mock for asserting hasher interactions.
type mockHasher struct {
	mock.Mock
}

func (m *mockHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *mockHasher) Verify(password, hash string) bool {
	return m.Called(password, hash).Bool(0)
}

func (m *mockHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// recorder captures RecordAuthOperation calls.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) RecordAuthOperation(operation, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, operation+":"+result)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// tamper flips one character in the middle of a token's payload.
func tamper(token string) string {
	b := []byte(token)
	i := len(b) / 2
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

var (
	_ auth.UserRepository     = (*memUsers)(nil)
	_ auth.SessionRepository  = (*memSessions)(nil)
	_ auth.SettingsRepository = (*memSettings)(nil)
	_ auth.PasswordHasher     = (*plainHasher)(nil)
	_ auth.PasswordHasher     = (*mockHasher)(nil)
	_ auth.Recorder           = (*recorder)(nil)
)
