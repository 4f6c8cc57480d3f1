// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/logging"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const userContextKey = "authcore.user"

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// HTTPRecorder counts API responses.
type HTTPRecorder interface {
	RecordHTTPRequest(route string, status int)
}

// requestID reuses a well-formed inbound X-Request-ID or mints a ULID, and
// threads it into the request context for logging.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !requestIDPattern.MatchString(id) {
			id = ulid.Make().String()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// accessLog logs one line per request and feeds the route counter.
func accessLog(logger *slog.Logger, rec HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		rec.RecordHTTPRequest(route, status)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// Authenticate resolves the request's token into a user, or aborts with 401.
func (h *Handler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := h.authenticate(c); ok {
			c.Next()
		}
	}
}

// AuthorizeAdmin authenticates and then requires the admin role. A request
// that fails authentication gets 401 even if it could never be an admin.
func (h *Handler) AuthorizeAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := h.authenticate(c)
		if !ok {
			return
		}
		if !user.IsAdmin() {
			fail(c, http.StatusForbidden, MsgAdminRequired)
			return
		}
		c.Next()
	}
}

func (h *Handler) authenticate(c *gin.Context) (*auth.PublicUser, bool) {
	token := ExtractToken(c.Request)
	if token == "" {
		fail(c, http.StatusUnauthorized, MsgAuthRequired)
		return nil, false
	}
	user, err := h.service.VerifySession(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	c.Set(userContextKey, user)
	return user, true
}

// CurrentUser returns the user stored by Authenticate or AuthorizeAdmin.
func CurrentUser(c *gin.Context) (*auth.PublicUser, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*auth.PublicUser)
	return user, ok && user != nil
}
