package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blobfs/internal/config"
	"github.com/3leaps/blobfs/internal/observability"
	"github.com/3leaps/blobfs/pkg/provider"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the configuration and storage connection and
suggest fixes for common issues.

Examples:
  blobfs doctor
  blobfs doctor --provider s3 --container my-bucket`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorTimeout time.Duration

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 15*time.Second, "Time limit for the connectivity check")
}

// doctorCheck is one diagnostic step. A nil error is a pass.
type doctorCheck struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := observability.CLILogger

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to load config", err)
	}

	checks := []doctorCheck{
		{"Go runtime", func(context.Context) (string, error) {
			return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH), nil
		}},
		{"foundation libraries", func(context.Context) (string, error) {
			return foundationVersions(), nil
		}},
		{"config directory", func(context.Context) (string, error) {
			return os.UserConfigDir()
		}},
		{"configuration", func(context.Context) (string, error) {
			if err := cfg.Validate(); err != nil {
				return "", err
			}
			return fmt.Sprintf("provider=%s container=%s", cfg.Storage.Provider, containerName(cfg)), nil
		}},
		{"credentials", func(ctx context.Context) (string, error) {
			return checkCredentials(ctx, cfg)
		}},
		{"storage connectivity", func(ctx context.Context) (string, error) {
			return checkConnectivity(ctx, cfg)
		}},
	}

	log.Info("=== blobfs doctor ===")
	failed := 0
	for i, c := range checks {
		detail, err := c.run(ctx)
		prefix := fmt.Sprintf("[%d/%d] Checking %s...", i+1, len(checks), c.name)
		if err != nil {
			failed++
			log.Error(prefix+" FAILED", zap.Error(err))
			continue
		}
		log.Info(prefix+" ok", zap.String("detail", detail))
	}

	if failed > 0 {
		log.Warn("Some checks failed. Review the output above for details.", zap.Int("failed", failed))
		return exitError(foundry.ExitExternalServiceUnavailable, "Diagnostics failed", fmt.Errorf("%d of %d checks failed", failed, len(checks)))
	}
	log.Info("All checks passed")
	return nil
}

// checkCredentials reports where credentials come from without contacting
// the storage service.
func checkCredentials(ctx context.Context, cfg *config.Config) (string, error) {
	switch provider.ProviderType(cfg.Storage.Provider) {
	case provider.ProviderAzureBlob:
		az := cfg.Storage.Azure
		switch {
		case az.ConnectionString != "":
			return "connection string", nil
		case az.SASToken != "":
			return "SAS token", nil
		case az.AccountKey != "":
			return "account key " + maskSecret(az.AccountKey), nil
		case az.AuthMode == "identity":
			return "default Azure credential chain", nil
		default:
			return "", errors.New("no Azure credentials: set AZURE_STORAGE_ACCOUNT_KEY, AZURE_STORAGE_SAS_TOKEN or AZURE_STORAGE_CONNECTION_STRING, or use auth_mode identity")
		}
	case provider.ProviderS3:
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Storage.S3.Profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Storage.S3.Profile))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return "", fmt.Errorf("cannot load AWS config: %w", err)
		}
		creds, err := awsCfg.Credentials.Retrieve(ctx)
		if err != nil {
			return "", fmt.Errorf("cannot retrieve AWS credentials: %w", err)
		}
		source := creds.Source
		if source == "" {
			source = "unknown"
		}
		return fmt.Sprintf("access key %s from %s", maskSecret(creds.AccessKeyID), source), nil
	default:
		return "not required", nil
	}
}

func checkConnectivity(ctx context.Context, cfg *config.Config) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	prov, err := openProvider(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer func() { _ = prov.Close() }()

	start := time.Now()
	if err := (storageHealthChecker{prov: prov}).CheckHealth(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("reachable in %s", time.Since(start).Round(time.Millisecond)), nil
}

// foundationVersions reports the gofulmen and crucible versions linked in.
func foundationVersions() string {
	v := crucible.GetVersion()
	gofulmen, standards := v.Gofulmen, v.Crucible
	if gofulmen == "" {
		gofulmen = "unknown"
	}
	if standards == "" {
		standards = "unknown"
	}
	return fmt.Sprintf("gofulmen %s, crucible %s", gofulmen, standards)
}

// maskSecret masks all but the last 4 characters.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
