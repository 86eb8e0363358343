package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blobfs/internal/config"
	"github.com/3leaps/blobfs/internal/observability"
	"github.com/3leaps/blobfs/pkg/blobservice"
	"github.com/3leaps/blobfs/pkg/provider"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local-file> [name]",
	Short: "Upload a file and print its public URL",
	Long: `Upload a local file as a blob and print the resulting URL.

The blob name defaults to the local file's base name. With --unique an
8-character random suffix is added before the extension.

Examples:
  blobfs upload ./photo.jpg img/photo.jpg --unique
  blobfs upload ./report.pdf --visibility public`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runUpload,
}

var urlCmd = &cobra.Command{
	Use:   "url <name>",
	Short: "Print the public URL of a blob",
	Args:  cobra.ExactArgs(1),
	RunE:  runURL,
}

var blobsCmd = &cobra.Command{
	Use:   "blobs [prefix]",
	Short: "List blobs with their URLs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBlobs,
}

var (
	uploadUnique       bool
	uploadVisibility   string
	uploadContentType  string
	uploadCacheControl string
	uploadTimeout      string

	blobsMax int
)

func init() {
	rootCmd.AddCommand(uploadCmd, urlCmd, blobsCmd)

	uploadCmd.Flags().BoolVar(&uploadUnique, "unique", false, "Append a random suffix to the blob name")
	uploadCmd.Flags().StringVar(&uploadVisibility, "visibility", "", "public or private (default: blob.default_visibility)")
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "Content type (default: detected)")
	uploadCmd.Flags().StringVar(&uploadCacheControl, "cache-control", "", "Cache-Control header")
	uploadCmd.Flags().StringVar(&uploadTimeout, "timeout", "", "Upload time limit (default: blob.max_upload_time)")

	blobsCmd.Flags().IntVar(&blobsMax, "max", 1000, "Maximum blobs to list")
}

// newBlobService builds the upload/download service for the configured
// provider. The caller closes the returned provider.
func newBlobService(ctx context.Context) (*blobservice.Service, provider.Provider, error) {
	cfg, err := currentConfig(ctx)
	if err != nil {
		return nil, nil, exitError(foundry.ExitFileReadError, "Failed to load config", err)
	}
	prov, err := openProvider(ctx, cfg)
	if err != nil {
		return nil, nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	return blobservice.New(prov, blobServiceConfig(cfg)), prov, nil
}

func blobServiceConfig(cfg *config.Config) blobservice.Config {
	bc := blobservice.Config{
		AccountName:       cfg.Storage.Azure.AccountName,
		Container:         containerName(cfg),
		BaseURL:           cfg.Blob.URL,
		DefaultVisibility: cfg.Blob.DefaultVisibility,
		MaxOperationTime:  cfg.Blob.MaxUploadTime,
		Logger:            observability.CLILogger,
	}
	if bc.MaxOperationTime == 0 {
		// A configured zero means no limit.
		bc.MaxOperationTime = -1
	}
	return bc
}

func runUpload(cmd *cobra.Command, args []string) error {
	if err := requireWritable("upload"); err != nil {
		return err
	}
	ctx := cmd.Context()

	local := args[0]
	name := filepath.Base(local)
	if len(args) == 2 {
		name = args[1]
	}

	f, err := os.Open(local)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot open local file", err)
	}
	defer func() { _ = f.Close() }()

	svc, prov, err := newBlobService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = prov.Close() }()

	if uploadTimeout != "" {
		d, err := parseDuration(uploadTimeout)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --timeout", err)
		}
		svc.SetMaxOperationTime(d)
	}

	url, err := svc.Upload(ctx, name, f, blobservice.UploadOptions{
		Unique:       uploadUnique,
		ContentType:  uploadContentType,
		CacheControl: uploadCacheControl,
		Visibility:   uploadVisibility,
	})
	if err != nil {
		return exitError(exitCodeFor(err), "Upload failed", err)
	}
	observability.CLILogger.Info("Blob uploaded", zap.String("name", name), zap.String("url", url))
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), url)
	return nil
}

func runURL(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to load config", err)
	}
	svc := blobservice.New(nil, blobServiceConfig(cfg))
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), svc.URL(args[0]))
	return nil
}

func runBlobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	svc, prov, err := newBlobService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = prov.Close() }()

	blobs, err := svc.ListBlobs(ctx, prefix, blobsMax)
	if err != nil {
		return exitError(exitCodeFor(err), "Listing failed", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, b := range blobs {
		if err := enc.Encode(b); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}
	return nil
}

// parseDuration accepts Go durations ("10m") and bare seconds ("600").
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
