// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/logging"
	"github.com/holomush/authcore/internal/xdg"
)

const serviceName = "authcore"

// NewRootCmd creates the root command for the authcore CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "authcore",
		Short: "authcore - credential and session authentication service",
		Long: `authcore issues, verifies and revokes session tokens for a small
multi-role user base, gates self-registration behind a runtime toggle, and
bootstraps the initial administrator.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "YAML config file path (default: $XDG_CONFIG_HOME/authcore/config.yaml if present)")
	pf.String("env-file", config.DefaultEnvFile, "dotenv file loaded into the environment if present")
	config.RegisterFlags(pf)

	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(newSetupAdminCmd(deps))
	cmd.AddCommand(newRegistrationCmd(deps))
	cmd.AddCommand(newSessionsCmd(deps))

	return cmd
}

// loadConfig merges defaults, the config file, the environment and the
// command line for the running command.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	configFile, err := flags.GetString("config")
	if err != nil {
		return config.Config{}, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}
	if configFile == "" {
		if configFile, err = xdg.DefaultConfigFile(); err != nil {
			return config.Config{}, err
		}
	}
	envFile, err := flags.GetString("env-file")
	if err != nil {
		return config.Config{}, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	return config.Load(config.LoadOptions{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      flags,
	})
}

// setupLogging installs the process logger. Logs go to the command's stderr.
func setupLogging(cmd *cobra.Command, cfg config.Config) (*slog.Logger, error) {
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Writer:  cmd.ErrOrStderr(),
	})
}
