package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blobfs/internal/observability"
	"github.com/3leaps/blobfs/pkg/output"
	"github.com/3leaps/blobfs/pkg/storage"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Write a file's contents to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

var putCmd = &cobra.Command{
	Use:   "put <path> [local-file]",
	Short: "Write a file from a local file or stdin",
	Long: `Write a file. The content comes from local-file, or from stdin when
local-file is omitted or "-". Missing parent directories need not exist.

Examples:
  blobfs put reports/q3.csv ./q3.csv
  echo hello | blobfs put notes/hello.txt --content-type text/plain`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPut,
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var rmdirCmd = &cobra.Command{
	Use:   "rmdir <path>",
	Short: "Delete a directory and everything under it",
	Args:  cobra.ExactArgs(1),
	RunE:  runRmdir,
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory marker",
	Args:  cobra.ExactArgs(1),
	RunE:  runMkdir,
}

var cpCmd = &cobra.Command{
	Use:   "cp <src> <dst>",
	Short: "Copy a file within the container",
	Args:  cobra.ExactArgs(2),
	RunE:  runCp,
}

var mvCmd = &cobra.Command{
	Use:   "mv <src> <dst>",
	Short: "Move a file within the container",
	Args:  cobra.ExactArgs(2),
	RunE:  runMv,
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show file metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

var existsCmd = &cobra.Command{
	Use:   "exists <path>",
	Short: "Report whether a file (or directory with --dir) exists",
	Long: `Print "true" or "false". A missing entry also exits non-zero so the
command can be used in shell conditions.`,
	Args: cobra.ExactArgs(1),
	RunE: runExists,
}

var (
	putContentType  string
	putCacheControl string
	putMetadata     map[string]string

	statOutput string
	existsDir  bool
)

func init() {
	rootCmd.AddCommand(catCmd, putCmd, rmCmd, rmdirCmd, mkdirCmd, cpCmd, mvCmd, statCmd, existsCmd)

	putCmd.Flags().StringVar(&putContentType, "content-type", "", "Content type (default: detected)")
	putCmd.Flags().StringVar(&putCacheControl, "cache-control", "", "Cache-Control header")
	putCmd.Flags().StringToStringVar(&putMetadata, "metadata", nil, "Metadata key=value pairs")

	statCmd.Flags().StringVarP(&statOutput, "output", "o", "jsonl", "Output format (jsonl|table)")
	existsCmd.Flags().BoolVar(&existsDir, "dir", false, "Check for a directory instead of a file")
}

func runCat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess, path, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	body, err := sess.adapter.ReadStream(ctx, path)
	if err != nil {
		return exitError(exitCodeFor(err), "Read failed", err)
	}
	defer func() { _ = body.Close() }()

	if _, err := io.Copy(cmd.OutOrStdout(), body); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	if err := requireWritable("put"); err != nil {
		return err
	}
	ctx := cmd.Context()

	var src io.Reader = cmd.InOrStdin()
	if len(args) == 2 && args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return exitError(foundry.ExitFileNotFound, "Cannot open local file", err)
		}
		defer func() { _ = f.Close() }()
		src = f
	}

	sess, path, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	err = sess.adapter.WriteStream(ctx, path, src, storage.WriteOptions{
		ContentType:  putContentType,
		CacheControl: putCacheControl,
		Metadata:     putMetadata,
	})
	if err != nil {
		return exitError(exitCodeFor(err), "Write failed", err)
	}
	observability.CLILogger.Info("File written", zap.String("path", path))
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	return mutate(cmd, "rm", args[0], func(ctx context.Context, s *session, path string) error {
		return s.adapter.Delete(ctx, path)
	})
}

func runRmdir(cmd *cobra.Command, args []string) error {
	return mutate(cmd, "rmdir", args[0], func(ctx context.Context, s *session, path string) error {
		return s.adapter.DeleteDirectory(ctx, path)
	})
}

func runMkdir(cmd *cobra.Command, args []string) error {
	return mutate(cmd, "mkdir", args[0], func(ctx context.Context, s *session, path string) error {
		return s.adapter.CreateDirectory(ctx, path)
	})
}

func runCp(cmd *cobra.Command, args []string) error {
	return mutate(cmd, "cp", args[0], func(ctx context.Context, s *session, path string) error {
		dst, err := s.sameContainer(ctx, args[1])
		if err != nil {
			return err
		}
		return s.adapter.Copy(ctx, path, dst)
	})
}

func runMv(cmd *cobra.Command, args []string) error {
	return mutate(cmd, "mv", args[0], func(ctx context.Context, s *session, path string) error {
		dst, err := s.sameContainer(ctx, args[1])
		if err != nil {
			return err
		}
		return s.adapter.Move(ctx, path, dst)
	})
}

// mutate runs a modifying adapter call on target under the readonly guard.
func mutate(cmd *cobra.Command, op, target string, fn func(ctx context.Context, s *session, path string) error) error {
	if err := requireWritable(op); err != nil {
		return err
	}
	ctx := cmd.Context()
	sess, path, err := openSession(ctx, target)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if err := fn(ctx, sess, path); err != nil {
		observability.CLILogger.Error("Operation failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
		return exitError(exitCodeFor(err), op+" failed", err)
	}
	return nil
}

func runStat(cmd *cobra.Command, args []string) error {
	if statOutput != "jsonl" && statOutput != "table" {
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("expected jsonl or table, got %q", statOutput))
	}
	ctx := cmd.Context()
	sess, path, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	attrs, err := sess.adapter.Stat(ctx, path)
	if err != nil {
		return exitError(exitCodeFor(err), "Stat failed", err)
	}

	if statOutput == "table" {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(tw, "Path:\t%s\n", attrs.Path)
		_, _ = fmt.Fprintf(tw, "Size:\t%d\n", attrs.Size)
		_, _ = fmt.Fprintf(tw, "Modified:\t%s\n", attrs.LastModified.UTC().Format(time.RFC3339))
		_, _ = fmt.Fprintf(tw, "Content-Type:\t%s\n", attrs.MimeType)
		if attrs.ETag != "" {
			_, _ = fmt.Fprintf(tw, "ETag:\t%s\n", attrs.ETag)
		}
		if attrs.CacheControl != "" {
			_, _ = fmt.Fprintf(tw, "Cache-Control:\t%s\n", attrs.CacheControl)
		}
		for k, v := range attrs.Metadata {
			_, _ = fmt.Fprintf(tw, "Metadata:\t%s=%s\n", k, v)
		}
		return tw.Flush()
	}

	jw := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String(), sess.cfg.Storage.Provider)
	defer func() { _ = jw.Close() }()
	return jw.WriteObject(ctx, &output.ObjectRecord{
		Path:         attrs.Path,
		Size:         attrs.Size,
		LastModified: attrs.LastModified,
		ContentType:  attrs.MimeType,
		ETag:         attrs.ETag,
		CacheControl: attrs.CacheControl,
		Metadata:     attrs.Metadata,
	})
}

func runExists(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess, path, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	check := sess.adapter.FileExists
	if existsDir {
		check = sess.adapter.DirectoryExists
	}
	ok, err := check(ctx, path)
	if err != nil {
		return exitError(exitCodeFor(err), "Existence check failed", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), ok)
	if !ok {
		return exitError(foundry.ExitFileNotFound, "Not found", fmt.Errorf("%s does not exist", args[0]))
	}
	return nil
}
