// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// CookieName is the cookie that carries the session token for browsers.
const CookieName = "auth_token"

// maxTokenBodyBytes bounds how much of a request body is inspected for a
// token field.
const maxTokenBodyBytes = 1 << 20

// ExtractToken finds the session token on a request. Sources are tried in
// order: an "Authorization: Bearer" header, a "token" field in a JSON body,
// then the auth_token cookie. The first non-empty token wins. The body is
// restored so handlers can still read it. Returns "" when none is present.
func ExtractToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}

	if token := tokenFromBody(r); token != "" {
		return token
	}

	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// ExtractBodyToken is ExtractToken for endpoints whose body names the token
// to act on: a "token" field in a JSON body wins over the header and cookie.
func ExtractBodyToken(r *http.Request) string {
	if token := tokenFromBody(r); token != "" {
		return token
	}
	return ExtractToken(r)
}

func tokenFromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxTokenBodyBytes))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(data), r.Body), Closer: r.Body}
	if err != nil || len(data) == 0 {
		return ""
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Token
}

type readCloser struct {
	io.Reader
	io.Closer
}
