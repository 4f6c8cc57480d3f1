// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the auth service over HTTP with gin and implements the
// request authenticator used to protect routes.
package web

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Options configures NewRouter.
type Options struct {
	Service AuthService
	Logger  *slog.Logger
	// Metrics counts responses by route. Optional.
	Metrics HTTPRecorder
	// CookieSecure sets the Secure attribute on the auth_token cookie.
	CookieSecure bool
	// AllowedOrigins are glob patterns such as "https://*.example.com".
	// Empty disables CORS handling.
	AllowedOrigins []string
	// Now is the clock used for cookie lifetimes. Defaults to time.Now.
	Now func() time.Time
}

type nopHTTPRecorder struct{}

func (nopHTTPRecorder) RecordHTTPRequest(string, int) {}

// NewRouter builds the API engine.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Service == nil {
		return nil, oops.Code("WEB_CONFIG_INVALID").Errorf("auth service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopHTTPRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	h := &Handler{
		service:      opts.Service,
		logger:       opts.Logger,
		cookieSecure: opts.CookieSecure,
		now:          opts.Now,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(opts.Logger, opts.Metrics))

	if len(opts.AllowedOrigins) > 0 {
		match, err := OriginMatcher(opts.AllowedOrigins)
		if err != nil {
			return nil, err
		}
		cfg := cors.DefaultConfig()
		cfg.AllowOriginFunc = match
		cfg.AllowCredentials = true
		cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader}
		cfg.ExposeHeaders = []string{RequestIDHeader}
		r.Use(cors.New(cfg))
	}

	api := r.Group("/api")
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/login", h.login)
		authRoutes.POST("/logout", h.logout)
		authRoutes.POST("/verify", h.verify)
		authRoutes.GET("/setup-admin", h.getSetupAdmin)
		authRoutes.POST("/setup-admin", h.postSetupAdmin)
		authRoutes.POST("/register", h.register)
		authRoutes.GET("/me", h.Authenticate(), h.me)
	}

	admin := api.Group("/admin", h.AuthorizeAdmin())
	{
		admin.GET("/settings/registration", h.getRegistration)
		admin.PUT("/settings/registration", h.putRegistration)
	}

	return r, nil
}

// OriginMatcher compiles origin glob patterns into a CORS origin check.
func OriginMatcher(patterns []string) (func(origin string) bool, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.Code("WEB_CONFIG_INVALID").With("origin", p).Wrap(err)
		}
		globs = append(globs, g)
	}
	return func(origin string) bool {
		for _, g := range globs {
			if g.Match(origin) {
				return true
			}
		}
		return false
	}, nil
}
