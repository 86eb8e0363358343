// Package cmd implements the blobfs command line.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blobfs/internal/config"
	"github.com/3leaps/blobfs/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile   string
	logLevel  string
	logFormat string
	readOnly  bool

	storageProvider string
	storageAccount  string
	storageBucket   string
	storageBaseDir  string
	storageEndpoint string
	storageRegion   string
	storageProfile  string
	listPageSize    int

	// appConfig is loaded once per invocation by PersistentPreRunE.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "blobfs",
	Short: "Filesystem view over flat blob storage",
	Long: `blobfs presents an Azure Blob container, S3 bucket or local directory
as a hierarchical filesystem.

Directories are synthesized from '/'-separated key names. Listings are
lazy and degrade to a truncated result when the store fails mid-way.

Examples:
  blobfs ls docs/
  blobfs ls -r --include '**/*.pdf' --output table
  blobfs put reports/q3.csv ./q3.csv
  blobfs serve --port 8080`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ./blobfs.yaml or user config dir)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	pf.StringVar(&logFormat, "log-format", "", "Log format (console|json)")
	pf.BoolVar(&readOnly, "readonly", false, "Refuse commands that modify storage")

	pf.StringVar(&storageProvider, "provider", "", "Storage provider (azblob|s3|file)")
	pf.StringVar(&storageAccount, "account", "", "Azure storage account name")
	pf.StringVarP(&storageBucket, "container", "c", "", "Azure container or S3 bucket")
	pf.StringVar(&storageBaseDir, "base-dir", "", "Root directory for the file provider")
	pf.StringVar(&storageEndpoint, "endpoint", "", "Custom service endpoint (Azurite, MinIO)")
	pf.StringVar(&storageRegion, "region", "", "AWS region")
	pf.StringVar(&storageProfile, "profile", "", "AWS profile")
	pf.IntVar(&listPageSize, "page-size", 0, "Keys requested per listing page")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func initRuntime(cmd *cobra.Command, args []string) error {
	config.SetConfigFile(cfgFile)

	cfg, err := config.Load(cmd.Context(), flagOverrides(cmd))
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to load config", err)
	}
	appConfig = cfg

	observability.InitCLILogger(cfg.Logging.Level, cfg.Logging.Format == "json")
	observability.CLILogger.Debug("Config loaded",
		zap.String("provider", cfg.Storage.Provider),
		zap.String("config_file", cfgFile),
	)
	return nil
}

// flagOverrides maps explicitly set flags onto config keys. Unset flags
// leave file and environment values alone.
func flagOverrides(cmd *cobra.Command) map[string]any {
	out := map[string]any{}
	set := func(flag, key string, value any) {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			setNested(out, key, value)
		}
	}

	set("log-level", "logging.level", logLevel)
	set("log-format", "logging.format", logFormat)
	set("provider", "storage.provider", storageProvider)
	set("account", "storage.azure.account_name", storageAccount)
	set("base-dir", "storage.file.base_dir", storageBaseDir)
	set("region", "storage.s3.region", storageRegion)
	set("profile", "storage.s3.profile", storageProfile)
	set("page-size", "listing.page_size", listPageSize)

	// --container and --endpoint serve whichever cloud provider is active.
	set("container", "storage.azure.container", storageBucket)
	set("container", "storage.s3.bucket", storageBucket)
	set("endpoint", "storage.azure.endpoint", storageEndpoint)
	set("endpoint", "storage.s3.endpoint", storageEndpoint)
	return out
}

func setNested(m map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// currentConfig returns the loaded config, loading defaults when a command
// runs without the root pre-run (tests).
func currentConfig(ctx context.Context) (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	appConfig = cfg
	return cfg, nil
}

// requireWritable blocks mutating commands under --readonly.
func requireWritable(op string) error {
	if !readOnly {
		return nil
	}
	return exitError(foundry.ExitInvalidArgument, "Refusing to modify storage",
		fmt.Errorf("%s is not allowed in readonly mode", op))
}

func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}
