// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

var (
	adminUser  = &auth.PublicUser{ID: 1, Email: "admin@x.com", Name: "Admin", Role: auth.RoleAdmin, IsActive: true}
	editorUser = &auth.PublicUser{ID: 2, Email: "ed@x.com", Name: "Ed", Role: auth.RoleEditor, IsActive: true}
)

var errStore = oops.Code(auth.CodeStoreFailed).Wrap(errors.New("connection reset by peer"))

// fakeService resolves fixed tokens to users and records the calls it sees.
type fakeService struct {
	mu sync.Mutex

	sessions     map[string]*auth.PublicUser
	password     string
	allowReg     bool
	adminExists  bool
	expiresAt    time.Time
	verifyErr    error
	settingErr   error
	loggedOut    []string
	registered   []string
	verifyTokens []string
}

func newFakeService() *fakeService {
	return &fakeService{
		sessions: map[string]*auth.PublicUser{
			"admin-token":  adminUser,
			"editor-token": editorUser,
		},
		password:  "s3cret-pass",
		expiresAt: fixedNow.Add(auth.SessionTTL),
	}
}

func (f *fakeService) Register(_ context.Context, email, password, name string) (*auth.PublicUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.allowReg {
		return nil, oops.Code(auth.CodeRegistrationDisabled).Public(auth.MsgRegistrationDisabled).Errorf("registration is disabled")
	}
	if email == "" || password == "" || name == "" {
		return nil, oops.Code(auth.CodeValidation).Errorf("Email, password, and name are required")
	}
	for _, e := range f.registered {
		if e == email {
			return nil, oops.Code(auth.CodeDuplicateEmail).Public(auth.MsgDuplicateEmail).Wrap(auth.ErrDuplicateEmail)
		}
	}
	f.registered = append(f.registered, email)
	return &auth.PublicUser{ID: 10, Email: email, Name: name, Role: auth.RoleUser, IsActive: true}, nil
}

func (f *fakeService) Login(_ context.Context, email, password string) (*auth.LoginResult, error) {
	if email == "" || password == "" {
		return nil, oops.Code(auth.CodeValidation).Errorf("Email and password are required")
	}
	if email != adminUser.Email || password != f.password {
		return nil, oops.Code(auth.CodeInvalidCredentials).Public(auth.MsgInvalidCredentials).Errorf("invalid email or password")
	}
	return &auth.LoginResult{Token: "admin-token", ExpiresAt: f.expiresAt, User: adminUser}, nil
}

func (f *fakeService) VerifySession(_ context.Context, token string) (*auth.PublicUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyTokens = append(f.verifyTokens, token)
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	user, ok := f.sessions[token]
	if !ok {
		return nil, oops.Code(auth.CodeUnauthenticated).Public(auth.MsgInvalidSession).Errorf("invalid or expired token")
	}
	return user, nil
}

func (f *fakeService) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = append(f.loggedOut, token)
	delete(f.sessions, token)
	return nil
}

func (f *fakeService) GetRegistrationSetting(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settingErr != nil {
		return false, f.settingErr
	}
	return f.allowReg, nil
}

func (f *fakeService) SetRegistrationSetting(_ context.Context, enabled bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settingErr != nil {
		return false, f.settingErr
	}
	f.allowReg = enabled
	return enabled, nil
}

func (f *fakeService) AdminExists(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adminExists, nil
}

func (f *fakeService) CreateAdminUser(_ context.Context, email, password, name string) (*auth.PublicUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adminExists {
		return nil, oops.Code(auth.CodeAdminExists).Public(auth.MsgAdminExists).Wrap(auth.ErrAdminExists)
	}
	if email == "" || password == "" || name == "" {
		return nil, oops.Code(auth.CodeValidation).Errorf("Email, password, and name are required")
	}
	if len(password) < 8 {
		return nil, oops.Code(auth.CodeValidation).Errorf("Password must be at least 8 characters long")
	}
	f.adminExists = true
	return &auth.PublicUser{ID: 1, Email: email, Name: name, Role: auth.RoleAdmin, IsActive: true}, nil
}

// httpCounter captures RecordHTTPRequest calls.
type httpCounter struct {
	mu    sync.Mutex
	calls map[string][]int
}

func (h *httpCounter) RecordHTTPRequest(route string, status int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls == nil {
		h.calls = make(map[string][]int)
	}
	h.calls[route] = append(h.calls[route], status)
}

func (h *httpCounter) statuses(route string) []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.calls[route]...)
}

func oopsUnauthenticated() error {
	return oops.Code(auth.CodeUnauthenticated).Public(auth.MsgInvalidSession).Errorf("invalid or expired token")
}
