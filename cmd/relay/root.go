// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relay-dev/relay/internal/config"
	"github.com/relay-dev/relay/internal/secrets"
	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// NewRootCmd creates the root relay command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Relay, a health-aware AI job router",
		Long:          "Relay routes text extraction and content analysis jobs across AI providers, skipping providers that are cooling down.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().String("env-file", "", "load environment variables from a .env file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newStartCmd(),
		newExtractCmd(),
		newAnalyzeCmd(),
		newHealthCmd(),
		newRouteCmd(),
		newJobsCmd(),
		newDoctorCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	verbose, _ := flags.GetBool("verbose")
	setupLogging(cmd, verbose)

	if envFile, _ := flags.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "loading env file %s: %w", envFile, err)
		}
	}

	v := viper.GetViper()
	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := flags.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType stays unset: with it, viper also tries the bare name
		// and would pick up a ./relay binary.
		v.SetConfigName("relay")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/relay")
		v.AddConfigPath("/etc/relay")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path, pathErr := config.DefaultConfigPath(); pathErr == nil && config.BootstrapConfig(path) {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if used := v.ConfigFileUsed(); used != "" {
		config.WarnInsecurePermissions(used)
	}

	if err := v.BindPFlag("data_dir", flags.Lookup("data-dir")); err != nil {
		return relayerr.Errorf(relayerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", flags.Lookup("verbose")); err != nil {
		return relayerr.Errorf(relayerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

func setupLogging(cmd *cobra.Command, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadConfig resolves keyring references held by the global Viper and
// decodes the validated configuration.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	secrets.ResolveViperSecrets(v, secretStoreFactory())

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = config.DefaultDataDir()
	}
	return cfg, nil
}
