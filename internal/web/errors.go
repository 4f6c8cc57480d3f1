// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/pkg/errutil"
)

// Response messages that do not come from the auth service.
const (
	MsgAuthRequired       = "Authentication required"
	MsgAdminRequired      = "Admin access required"
	MsgTokenRequired      = "Token is required"
	MsgInvalidBody        = "Invalid request body"
	MsgInternalError      = "Internal server error"
	MsgLoginSuccess       = "Login successful"
	MsgLogoutSuccess      = "Logged out successfully"
	MsgTokenValid         = "Token is valid"
	MsgAdminCreated       = "Admin user created successfully"
	MsgUserRegistered     = "User registered successfully"
	MsgRegistrationUpdate = "Registration setting updated"
)

var statusByCode = map[string]int{
	auth.CodeValidation:           http.StatusBadRequest,
	auth.CodeInvalidCredentials:   http.StatusUnauthorized,
	auth.CodeRegistrationDisabled: http.StatusBadRequest,
	auth.CodeDuplicateEmail:       http.StatusBadRequest,
	auth.CodeAdminExists:          http.StatusBadRequest,
	auth.CodeUnauthenticated:      http.StatusUnauthorized,
	auth.CodeForbidden:            http.StatusForbidden,
}

// StatusFor maps an error to its HTTP status. Codes outside the auth
// taxonomy, store failures and config failures are 500.
func StatusFor(err error) int {
	if status, ok := statusByCode[auth.ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// messageFor returns the text shown to the caller. Validation errors are
// written for users; 5xx errors never expose their cause.
func messageFor(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return MsgInternalError
	}
	if auth.ErrorCode(err) == auth.CodeValidation {
		return oops.GetPublic(err, err.Error())
	}
	return oops.GetPublic(err, http.StatusText(status))
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		errutil.LogError(h.logger, "request failed", err)
	}
	fail(c, status, messageFor(err, status))
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
