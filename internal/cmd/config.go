package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blobfs/internal/config"
	"github.com/3leaps/blobfs/internal/observability"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the blobfs config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective settings to a config file",
	Long: `Write the current settings (defaults, environment and flags) to a
YAML config file. The file is created owner-only since it may hold
account keys.

Examples:
  blobfs config init
  blobfs --provider s3 --container logs config init --path ./blobfs.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configInitPath  string
	configInitForce bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd)

	configInitCmd.Flags().StringVar(&configInitPath, "path", "", "Destination (default: user config dir)")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to load config", err)
	}

	path := configInitPath
	if path == "" {
		path, err = config.DefaultPath()
		if err != nil {
			return exitError(foundry.ExitFileNotFound, "Cannot find config directory", err)
		}
	}
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return exitError(foundry.ExitInvalidArgument, "Config file exists", fmt.Errorf("%s already exists (use --force to overwrite)", path))
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return exitError(foundry.ExitFileReadError, "Cannot check config file", err)
	}

	if err := config.Save(path, cfg); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write config", err)
	}
	observability.CLILogger.Info("Config written", zap.String("path", path))
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
