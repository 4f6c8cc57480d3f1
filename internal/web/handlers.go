// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/holomush/authcore/internal/auth"
)

// AuthService is the part of auth.Service the API calls.
type AuthService interface {
	Register(ctx context.Context, email, password, name string) (*auth.PublicUser, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	VerifySession(ctx context.Context, token string) (*auth.PublicUser, error)
	Logout(ctx context.Context, token string) error
	GetRegistrationSetting(ctx context.Context) (bool, error)
	SetRegistrationSetting(ctx context.Context, enabled bool) (bool, error)
	AdminExists(ctx context.Context) (bool, error)
	CreateAdminUser(ctx context.Context, email, password, name string) (*auth.PublicUser, error)
}

var _ AuthService = (*auth.Service)(nil)

// Handler serves the auth API.
type Handler struct {
	service      AuthService
	logger       *slog.Logger
	cookieSecure bool
	now          func() time.Time
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type registrationRequest struct {
	AllowRegistration *bool `json:"allowRegistration"`
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, MsgInvalidBody)
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.setTokenCookie(c, result.Token, int(result.ExpiresAt.Sub(h.now()).Seconds()))
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   MsgLoginSuccess,
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
		"user":      result.User,
	})
}

func (h *Handler) logout(c *gin.Context) {
	token := ExtractBodyToken(c.Request)
	if token == "" {
		fail(c, http.StatusBadRequest, MsgTokenRequired)
		return
	}
	if err := h.service.Logout(c.Request.Context(), token); err != nil {
		h.writeError(c, err)
		return
	}
	h.setTokenCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": MsgLogoutSuccess})
}

func (h *Handler) verify(c *gin.Context) {
	token := ExtractBodyToken(c.Request)
	if token == "" {
		fail(c, http.StatusBadRequest, MsgTokenRequired)
		return
	}
	user, err := h.service.VerifySession(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": MsgTokenValid, "user": user})
}

// getSetupAdmin always answers 200; the body says whether setup is done.
func (h *Handler) getSetupAdmin(c *gin.Context) {
	exists, err := h.service.AdminExists(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"adminExists": exists})
}

func (h *Handler) postSetupAdmin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, MsgInvalidBody)
		return
	}
	user, err := h.service.CreateAdminUser(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": MsgAdminCreated, "user": user})
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, MsgInvalidBody)
		return
	}
	user, err := h.service.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": MsgUserRegistered, "user": user})
}

func (h *Handler) me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		fail(c, http.StatusUnauthorized, MsgAuthRequired)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (h *Handler) getRegistration(c *gin.Context) {
	enabled, err := h.service.GetRegistrationSetting(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "allowRegistration": enabled})
}

func (h *Handler) putRegistration(c *gin.Context) {
	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, MsgInvalidBody)
		return
	}
	if req.AllowRegistration == nil {
		fail(c, http.StatusBadRequest, "allowRegistration is required")
		return
	}
	enabled, err := h.service.SetRegistrationSetting(c.Request.Context(), *req.AllowRegistration)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": MsgRegistrationUpdate, "allowRegistration": enabled})
}

func (h *Handler) setTokenCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, value, maxAge, "/", "", h.cookieSecure, true)
}
