// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/store"
)

// AdminPasswordEnv supplies the setup-admin password when --password is not given.
const AdminPasswordEnv = "AUTHCORE_ADMIN_PASSWORD"

// withService connects to the database, builds the auth service and runs fn.
func withService(cmd *cobra.Command, deps *Deps, fn func(context.Context, *auth.Service) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireSecret(); err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	logger, err := setupLogging(cmd, cfg)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := deps.Connect(ctx, cfg.DatabaseURL, store.ConnectOptions{
		Timeout: cfg.ConnectTimeout,
		Logger:  logger,
	})
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	svc, err := newAuthService(db.Pool(), tokens, cfg, logger, nil)
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}

func newSetupAdminCmd(deps *Deps) *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "setup-admin",
		Short: "Create the initial administrator",
		Long: `Create the first admin user. This succeeds at most once per database;
later attempts fail because an admin already exists. The password is read
from --password or, if that is empty, from ` + AdminPasswordEnv + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, deps, func(ctx context.Context, svc *auth.Service) error {
				pw := password
				if pw == "" {
					// .env has been loaded by now, so it can supply the password too.
					pw = os.Getenv(AdminPasswordEnv)
				}
				user, err := svc.CreateAdminUser(ctx, email, pw, name)
				if err != nil {
					return err
				}
				cmd.Printf("Created admin user %s (id %d)\n", user.Email, user.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&name, "name", "", "admin display name")
	cmd.Flags().StringVar(&password, "password", "", "admin password (prefer "+AdminPasswordEnv+")")
	return cmd
}

func newRegistrationCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registration",
		Short: "Show or change whether self-registration is allowed",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current registration setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, deps, func(ctx context.Context, svc *auth.Service) error {
				enabled, err := svc.GetRegistrationSetting(ctx)
				if err != nil {
					return err
				}
				cmd.Println(registrationState(enabled))
				return nil
			})
		},
	})

	for _, enable := range []bool{true, false} {
		use := "disable"
		if enable {
			use = "enable"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: use + " self-registration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withService(cmd, deps, func(ctx context.Context, svc *auth.Service) error {
					enabled, err := svc.SetRegistrationSetting(ctx, enable)
					if err != nil {
						return err
					}
					cmd.Println(registrationState(enabled))
					return nil
				})
			},
		})
	}

	return cmd
}

func registrationState(enabled bool) string {
	if enabled {
		return "registration: enabled"
	}
	return "registration: disabled"
}

func newSessionsCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain stored sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete every expired session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, deps, func(ctx context.Context, svc *auth.Service) error {
				n, err := svc.PruneExpiredSessions(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("Deleted %d expired session(s)\n", n)
				return nil
			})
		},
	})

	var userID int64
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Delete every session of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID <= 0 {
				return oops.Code(auth.CodeValidation).Errorf("--user must be a positive user id")
			}
			return withService(cmd, deps, func(ctx context.Context, svc *auth.Service) error {
				n, err := svc.RevokeUserSessions(ctx, userID)
				if err != nil {
					return err
				}
				cmd.Printf("Revoked %d session(s) for user %d\n", n, userID)
				return nil
			})
		},
	}
	revoke.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.AddCommand(revoke)

	return cmd
}
