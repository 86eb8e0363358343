package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blobfs/internal/observability"
	"github.com/3leaps/blobfs/pkg/listing"
	"github.com/3leaps/blobfs/pkg/match"
	"github.com/3leaps/blobfs/pkg/output"
	"github.com/3leaps/blobfs/pkg/storage"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Long: `List the files and directories under a path.

Without --recursive only direct children are shown; deeper keys are
folded into their first-level directory. With --recursive every stored
key under the path is listed as-is.

If the store fails part-way the entries already listed are still
printed, followed by an error record, and the command exits non-zero.

Examples:
  blobfs ls
  blobfs ls docs/
  blobfs ls -r docs --include '**/*.pdf' --min-size 1MB
  blobfs ls -r --after 2024-01-01 --output table`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var (
	lsRecursive bool
	lsOutput    string
	lsIncludes  []string
	lsExcludes  []string
	lsNoHidden  bool
	lsMinSize   string
	lsMaxSize   string
	lsAfter     string
	lsBefore    string
)

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().BoolVarP(&lsRecursive, "recursive", "r", false, "List every key under the path")
	lsCmd.Flags().StringVarP(&lsOutput, "output", "o", "jsonl", "Output format (jsonl|table)")
	lsCmd.Flags().StringArrayVar(&lsIncludes, "include", nil, "Include glob pattern for files (repeatable)")
	lsCmd.Flags().StringArrayVar(&lsExcludes, "exclude", nil, "Exclude glob pattern (repeatable)")
	lsCmd.Flags().BoolVar(&lsNoHidden, "no-hidden", false, "Skip entries with a dot-prefixed path segment")
	lsCmd.Flags().StringVar(&lsMinSize, "min-size", "", "Minimum file size (e.g. 1KB, 10MiB)")
	lsCmd.Flags().StringVar(&lsMaxSize, "max-size", "", "Maximum file size")
	lsCmd.Flags().StringVar(&lsAfter, "after", "", "Modified at or after (YYYY-MM-DD or RFC3339)")
	lsCmd.Flags().StringVar(&lsBefore, "before", "", "Modified before (YYYY-MM-DD or RFC3339)")
}

// lsOptions is the resolved form of the ls flags.
type lsOptions struct {
	path      string
	recursive bool
	matcher   *match.Matcher
	filter    *match.Filter
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if lsOutput != "jsonl" && lsOutput != "table" {
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("expected jsonl or table, got %q", lsOutput))
	}

	target := ""
	if len(args) == 1 {
		target = args[0]
	}

	opts := lsOptions{recursive: lsRecursive}
	var err error
	opts.matcher, err = match.New(match.Config{
		Includes:      lsIncludes,
		Excludes:      lsExcludes,
		IncludeHidden: !lsNoHidden,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid pattern", err)
	}
	opts.filter, err = match.NewFilter(match.FilterConfig{
		MinSize: lsMinSize,
		MaxSize: lsMaxSize,
		After:   lsAfter,
		Before:  lsBefore,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid filter", err)
	}

	sess, path, err := openSession(ctx, target)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	opts.path = path
	if opts.recursive {
		opts.path = narrowPath(opts.path, opts.matcher.ListPrefix())
	}

	observability.CLILogger.Debug("Listing",
		zap.String("path", opts.path),
		zap.Bool("recursive", opts.recursive),
		zap.Strings("includes", opts.matcher.IncludePatterns()),
		zap.Stringer("filter", opts.filter),
	)

	out := cmd.OutOrStdout()
	var sum *output.SummaryRecord
	var listErr error
	if lsOutput == "table" {
		sum, listErr = listTable(ctx, out, sess.adapter, opts)
	} else {
		sum, listErr = listJSONL(ctx, out, sess.adapter, sess.cfg.Storage.Provider, opts)
	}
	if listErr != nil {
		observability.CLILogger.Warn("Listing truncated",
			zap.String("path", opts.path),
			zap.Int64("files", sum.Files),
			zap.Int64("directories", sum.Directories),
			zap.Error(listErr),
		)
		return exitError(exitCodeFor(listErr), "Listing truncated", listErr)
	}
	return nil
}

// narrowPath moves a recursive listing down to the static prefix of the
// include patterns when that prefix lies inside path.
func narrowPath(path, prefix string) string {
	if prefix == "" {
		return path
	}
	base := listing.DirPrefix(path)
	if strings.HasPrefix(prefix, base) {
		return prefix
	}
	return path
}

func selected(opts lsOptions, n listing.Node) bool {
	return opts.matcher.Match(n) && opts.filter.Match(n)
}

// listJSONL writes one node record per entry, an error record if the
// listing was cut short, then a summary record.
func listJSONL(ctx context.Context, w io.Writer, a *storage.Adapter, providerName string, opts lsOptions) (*output.SummaryRecord, error) {
	start := time.Now()
	jw := output.NewJSONLWriter(w, uuid.New().String(), providerName)
	defer func() { _ = jw.Close() }()

	sum := &output.SummaryRecord{Path: opts.path, Recursive: opts.recursive}
	l := a.ListContents(ctx, opts.path, opts.recursive)
	for n := range l.All() {
		if !selected(opts, n) {
			continue
		}
		if err := jw.WriteNode(ctx, output.NewNodeRecord(n)); err != nil {
			return sum, err
		}
		sum.Add(n)
	}

	listErr := l.Err()
	if listErr != nil {
		sum.Truncated = true
		if err := jw.WriteError(ctx, output.NewErrorRecord(opts.path, listErr)); err != nil {
			return sum, err
		}
	}
	sum.Duration = time.Since(start)
	sum.DurationHuman = sum.Duration.Round(time.Millisecond).String()
	if err := jw.WriteSummary(ctx, sum); err != nil {
		return sum, err
	}
	return sum, listErr
}

func listTable(ctx context.Context, w io.Writer, a *storage.Adapter, opts lsOptions) (*output.SummaryRecord, error) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KIND\tSIZE\tMODIFIED\tPATH")

	sum := &output.SummaryRecord{Path: opts.path, Recursive: opts.recursive}
	l := a.ListContents(ctx, opts.path, opts.recursive)
	for n := range l.All() {
		if !selected(opts, n) {
			continue
		}
		size, modified := "-", "-"
		if n.Size != nil {
			size = match.FormatSize(*n.Size)
		}
		if n.LastModified != nil {
			modified = n.LastModified.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Kind, size, modified, n.Path)
		sum.Add(n)
	}
	if err := tw.Flush(); err != nil {
		return sum, err
	}

	_, _ = fmt.Fprintf(w, "\n%d files, %d directories, %s\n",
		sum.Files, sum.Directories, match.FormatSize(sum.BytesTotal))
	if err := l.Err(); err != nil {
		sum.Truncated = true
		_, _ = fmt.Fprintf(w, "listing truncated: %v\n", err)
		return sum, err
	}
	return sum, nil
}
