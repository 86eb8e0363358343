package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/blobfs/internal/config"
	"github.com/3leaps/blobfs/internal/observability"
	"github.com/3leaps/blobfs/pkg/listing"
	"github.com/3leaps/blobfs/pkg/provider"
	"github.com/3leaps/blobfs/pkg/provider/azure"
	"github.com/3leaps/blobfs/pkg/provider/file"
	"github.com/3leaps/blobfs/pkg/provider/s3"
	"github.com/3leaps/blobfs/pkg/storage"
)

// openProvider connects to the backend selected by cfg.Storage.Provider.
func openProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	st := cfg.Storage
	switch provider.ProviderType(st.Provider) {
	case provider.ProviderAzureBlob:
		p, err := azure.New(ctx, azure.Config{
			AccountName:      st.Azure.AccountName,
			AccountKey:       st.Azure.AccountKey,
			SASToken:         st.Azure.SASToken,
			ConnectionString: st.Azure.ConnectionString,
			Endpoint:         st.Azure.Endpoint,
			Container:        st.Azure.Container,
			AuthMode:         azure.AuthMode(st.Azure.AuthMode),
			MaxKeys:          cfg.Listing.PageSize,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case provider.ProviderS3:
		p, err := s3.New(ctx, s3.Config{
			Bucket:         st.S3.Bucket,
			Region:         st.S3.Region,
			Endpoint:       st.S3.Endpoint,
			Profile:        st.S3.Profile,
			ForcePathStyle: st.S3.ForcePathStyle || st.S3.Endpoint != "",
			MaxKeys:        cfg.Listing.PageSize,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case provider.ProviderFile:
		p, err := file.New(file.Config{BaseDir: st.File.BaseDir})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q (expected azblob, s3 or file)", st.Provider)
	}
}

// containerName is the Azure container or S3 bucket name, for logs and
// output records.
func containerName(cfg *config.Config) string {
	switch provider.ProviderType(cfg.Storage.Provider) {
	case provider.ProviderAzureBlob:
		return cfg.Storage.Azure.Container
	case provider.ProviderS3:
		return cfg.Storage.S3.Bucket
	default:
		return cfg.Storage.File.BaseDir
	}
}

// session is an adapter over one opened provider.
type session struct {
	adapter *storage.Adapter
	prov    provider.Provider
	cfg     *config.Config
}

func (s *session) Close() error {
	return s.prov.Close()
}

// resolveTarget returns the config to use for target and the path inside
// the container. A URI target overrides the configured container.
func resolveTarget(ctx context.Context, target string) (*config.Config, string, error) {
	cfg, err := currentConfig(ctx)
	if err != nil {
		return nil, "", exitError(foundry.ExitFileReadError, "Failed to load config", err)
	}
	if !HasScheme(target) {
		return cfg, target, nil
	}
	u, err := ParseURI(target)
	if err != nil {
		return nil, "", exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	return u.Apply(cfg), u.Key, nil
}

// openSession resolves target and opens a storage adapter over its
// provider. It returns the path to operate on inside the container.
func openSession(ctx context.Context, target string) (*session, string, error) {
	cfg, path, err := resolveTarget(ctx, target)
	if err != nil {
		return nil, "", err
	}

	prov, err := openProvider(ctx, cfg)
	if err != nil {
		observability.CLILogger.Error("Failed to create provider",
			zap.String("provider", cfg.Storage.Provider),
			zap.Error(err),
		)
		return nil, "", exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}

	a := storage.New(prov, storage.Config{
		Listing: listing.Config{
			PageSize:  cfg.Listing.PageSize,
			RateLimit: cfg.Listing.RateLimit,
			Logger:    observability.CLILogger,
		},
		Logger: observability.CLILogger,
	})
	return &session{adapter: a, prov: prov, cfg: cfg}, path, nil
}

// sameContainer resolves dst for a two-path command and checks it names
// the same container as s.
func (s *session) sameContainer(ctx context.Context, dst string) (string, error) {
	if !HasScheme(dst) {
		return dst, nil
	}
	cfg, path, err := resolveTarget(ctx, dst)
	if err != nil {
		return "", err
	}
	if cfg.Storage.Provider != s.cfg.Storage.Provider || containerName(cfg) != containerName(s.cfg) {
		return "", exitError(foundry.ExitInvalidArgument, "Cross-container copy is not supported",
			fmt.Errorf("%s is not in %s", dst, containerName(s.cfg)))
	}
	return path, nil
}

// exitCodeFor picks the process exit code for a storage failure.
func exitCodeFor(err error) int {
	switch {
	case provider.IsNotFound(err), provider.IsContainerNotFound(err):
		return foundry.ExitFileNotFound
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return foundry.ExitFileReadError
	case provider.IsUnsupported(err):
		return foundry.ExitInvalidArgument
	default:
		return foundry.ExitExternalServiceUnavailable
	}
}
