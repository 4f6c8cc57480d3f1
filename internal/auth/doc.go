// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides credential and session authentication for authcore.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with validated email, name, role and password hash
//   - NewSession - creates a Session bound to a user with a fixed expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Verification Model
//
// A session token is checked twice. TokenIssuer verifies its signature and
// embedded expiry without touching the store; the SessionRepository row must
// then still exist and be unexpired. Logout deletes the row, which revokes the
// token immediately even though its signature remains valid.
//
// # Services
//
// Service coordinates registration, login, session verification, logout,
// the registration toggle and administrator bootstrap. It is created with
// NewService, which validates its dependencies.
package auth
