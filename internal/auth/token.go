// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTTL is how long an issued token and its session row remain valid.
const SessionTTL = 7 * 24 * time.Hour

// DefaultTokenIssuer is the issuer claim stamped on new tokens.
const DefaultTokenIssuer = "authcore"

// TokenClaims is the payload of a session token.
type TokenClaims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies session tokens with a shared HMAC secret.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
	// lenient skips claim validation and only checks the signature.
	lenient *jwt.Parser
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenClock sets the time source used for issuing and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// WithTokenTTL overrides SessionTTL. Non-positive values are ignored.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithTokenIssuer overrides the issuer claim.
func WithTokenIssuer(issuer string) TokenOption {
	return func(t *TokenIssuer) {
		if issuer != "" {
			t.issuer = issuer
		}
	}
}

// NewTokenIssuer creates a TokenIssuer. An empty secret is a configuration
// error; there is no fallback secret.
func NewTokenIssuer(secret string, opts ...TokenOption) (*TokenIssuer, error) {
	if secret == "" {
		return nil, oops.Code(CodeConfigInvalid).
			With("setting", "jwt_secret").
			Errorf("JWT secret is not configured")
	}

	t := &TokenIssuer{
		secret: []byte(secret),
		issuer: DefaultTokenIssuer,
		ttl:    SessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	t.lenient = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return t, nil
}

// TTL returns the lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue creates a signed token for the user. Every token carries a unique
// ID so two tokens issued for the same user in the same second differ.
func (t *TokenIssuer) Issue(userID int64) (string, time.Time, error) {
	now := t.now().UTC()
	expiresAt := now.Add(t.ttl)

	jti, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_FAILED").Wrap(err)
	}

	claims := TokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_FAILED").With("user_id", userID).Wrap(err)
	}
	// Numeric dates truncate to seconds; report what the token actually says.
	return signed, claims.ExpiresAt.Time, nil
}

// Verify returns the user ID carried by a valid token. Bad signatures,
// foreign algorithms and malformed tokens yield ErrTokenInvalid. A token that
// is otherwise valid but past its expiry yields ErrTokenExpired together with
// its user ID.
func (t *TokenIssuer) Verify(token string) (int64, error) {
	if token == "" {
		return 0, ErrTokenInvalid
	}

	claims, err := t.parse(t.parser, token)
	if err == nil {
		return claims.UserID, nil
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return 0, ErrTokenInvalid
	}

	// The expiry check may run before the signature check, so confirm the
	// signature and the remaining claims on their own.
	claims, err = t.parse(t.lenient, token)
	if err != nil || claims.Issuer != t.issuer {
		return 0, ErrTokenInvalid
	}
	return claims.UserID, ErrTokenExpired
}

func (t *TokenIssuer) parse(parser *jwt.Parser, token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.UserID <= 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
