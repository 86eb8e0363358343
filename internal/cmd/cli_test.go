package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/blobfs/internal/config"
)

// resetFlags restores every flag of c and its subcommands to its default.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else if f.Value.Type() != "stringToString" {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	putMetadata = nil
	appConfig = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// fileStore creates a file-provider root holding files and returns the
// global flags that select it.
func fileStore(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)

	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir, []string{"--provider", "file", "--base-dir", dir, "--log-level", "error"}
}

type cliRecord struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func parseRecords(t *testing.T, out string) []cliRecord {
	t.Helper()
	var recs []cliRecord
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r cliRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), sc.Text())
		recs = append(recs, r)
	}
	return recs
}

func nodePaths(recs []cliRecord) []string {
	var out []string
	for _, r := range recs {
		if r.Type == "blobfs.node.v1" {
			out = append(out, r.Data["path"].(string))
		}
	}
	return out
}

func TestSetVersionInfo(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{"set all values", "1.0.0", "abc123", "2024-01-15"},
		{"set dev version", "dev", "HEAD", "unknown"},
		{"set empty values", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)
			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestSetNested(t *testing.T) {
	m := map[string]any{}
	setNested(m, "storage.azure.container", "media")
	setNested(m, "storage.provider", "azblob")
	setNested(m, "listing.page_size", 10)

	assert.Equal(t, map[string]any{
		"storage": map[string]any{
			"provider": "azblob",
			"azure":    map[string]any{"container": "media"},
		},
		"listing": map[string]any{"page_size": 10},
	}, m)
}

func TestExitError(t *testing.T) {
	err := exitError(3, "Failed to load config", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "Failed to load config: unexpected EOF (exit code 3)", err.Error())
}

func TestCLI_FlagsOverrideConfig(t *testing.T) {
	_, _ = fileStore(t, nil)

	_, err := runCLI(t, nil, "--provider", "s3", "--container", "logs", "--region", "eu-west-1", "--page-size", "50", "version")
	require.NoError(t, err)
	require.NotNil(t, appConfig)
	assert.Equal(t, "s3", appConfig.Storage.Provider)
	assert.Equal(t, "logs", appConfig.Storage.S3.Bucket)
	assert.Equal(t, "logs", appConfig.Storage.Azure.Container)
	assert.Equal(t, "eu-west-1", appConfig.Storage.S3.Region)
	assert.Equal(t, 50, appConfig.Listing.PageSize)
}

func TestCLI_Ls(t *testing.T) {
	_, flags := fileStore(t, map[string]string{
		"docs/a.txt":      "aaa",
		"docs/b.pdf":      "bb",
		"docs/sub/c.txt":  "c",
		"docs/sub/d/e.md": "e",
		"top.txt":         "t",
	})

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "shallow root",
			args: []string{"ls"},
			want: []string{"docs/", "top.txt"},
		},
		{
			name: "shallow subdirectory",
			args: []string{"ls", "docs"},
			want: []string{"docs/a.txt", "docs/b.pdf", "docs/sub/"},
		},
		{
			name: "recursive",
			args: []string{"ls", "-r", "docs/sub/"},
			want: []string{"docs/sub/c.txt", "docs/sub/d/e.md"},
		},
		{
			name: "recursive with include",
			args: []string{"ls", "-r", "--include", "docs/**/*.txt"},
			want: []string{"docs/a.txt", "docs/sub/c.txt"},
		},
		{
			name: "size filter",
			args: []string{"ls", "docs", "--min-size", "2"},
			want: []string{"docs/a.txt", "docs/b.pdf", "docs/sub/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, nil, append(flags, tt.args...)...)
			require.NoError(t, err)

			recs := parseRecords(t, out)
			assert.ElementsMatch(t, tt.want, nodePaths(recs))

			last := recs[len(recs)-1]
			assert.Equal(t, "blobfs.summary.v1", last.Type)
			assert.Equal(t, false, last.Data["truncated"])
		})
	}
}

func TestCLI_LsTable(t *testing.T) {
	_, flags := fileStore(t, map[string]string{"docs/a.txt": "aaa"})

	out, err := runCLI(t, nil, append(flags, "ls", "--output", "table")...)
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "docs/")
	assert.Contains(t, out, "0 files, 1 directories")
}

func TestCLI_LsInvalidArguments(t *testing.T) {
	_, flags := fileStore(t, nil)

	_, err := runCLI(t, nil, append(flags, "ls", "--output", "xml")...)
	assert.ErrorContains(t, err, "Invalid --output value")

	_, err = runCLI(t, nil, append(flags, "ls", "--include", "[")...)
	assert.ErrorContains(t, err, "Invalid pattern")

	_, err = runCLI(t, nil, append(flags, "ls", "--after", "soon")...)
	assert.ErrorContains(t, err, "Invalid filter")
}

func TestNarrowPath(t *testing.T) {
	assert.Equal(t, "docs", narrowPath("docs", ""))
	assert.Equal(t, "docs/2024/", narrowPath("docs", "docs/2024/"))
	assert.Equal(t, "docs/2024/", narrowPath("", "docs/2024/"))
	assert.Equal(t, "other", narrowPath("other", "docs/"))
}

func TestCLI_FileLifecycle(t *testing.T) {
	dir, flags := fileStore(t, nil)
	run := func(stdin io.Reader, args ...string) (string, error) {
		return runCLI(t, stdin, append(flags, args...)...)
	}

	_, err := run(strings.NewReader("hello"), "put", "notes/hello.txt")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "notes", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	out, err := run(nil, "cat", "notes/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = run(nil, "exists", "notes/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = run(nil, "stat", "notes/hello.txt")
	require.NoError(t, err)
	recs := parseRecords(t, out)
	require.Len(t, recs, 1)
	assert.Equal(t, "blobfs.object.v1", recs[0].Type)
	assert.EqualValues(t, 5, recs[0].Data["size"])

	_, err = run(nil, "cp", "notes/hello.txt", "notes/copy.txt")
	require.NoError(t, err)
	_, err = run(nil, "mv", "notes/copy.txt", "archive/moved.txt")
	require.NoError(t, err)

	out, err = run(nil, "cat", "archive/moved.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = run(nil, "rm", "notes/hello.txt")
	require.NoError(t, err)

	out, err = run(nil, "exists", "notes/hello.txt")
	require.Error(t, err)
	assert.Equal(t, "false\n", out)

	_, err = run(nil, "cat", "notes/hello.txt")
	assert.ErrorContains(t, err, "Read failed")
}

func TestCLI_Directories(t *testing.T) {
	_, flags := fileStore(t, map[string]string{"old/a.txt": "a", "old/b/c.txt": "c"})
	run := func(args ...string) (string, error) {
		return runCLI(t, nil, append(flags, args...)...)
	}

	_, err := run("mkdir", "fresh")
	require.NoError(t, err)
	out, err := run("exists", "--dir", "fresh")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	_, err = run("rmdir", "old")
	require.NoError(t, err)
	_, err = run("exists", "--dir", "old")
	assert.Error(t, err)
}

func TestCLI_ReadOnlyBlocksWrites(t *testing.T) {
	_, flags := fileStore(t, map[string]string{"a.txt": "a"})

	for _, args := range [][]string{
		{"put", "b.txt"},
		{"rm", "a.txt"},
		{"rmdir", "docs"},
		{"mkdir", "docs"},
		{"cp", "a.txt", "b.txt"},
		{"mv", "a.txt", "b.txt"},
		{"upload", "a.txt"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := runCLI(t, nil, append(append(flags, "--readonly"), args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "readonly")
		})
	}

	out, err := runCLI(t, nil, append(append(flags, "--readonly"), "cat", "a.txt")...)
	require.NoError(t, err)
	assert.Equal(t, "a", out)
}

func TestCLI_CrossContainerCopyRejected(t *testing.T) {
	_, flags := fileStore(t, map[string]string{"a.txt": "a"})

	_, err := runCLI(t, nil, append(flags, "cp", "a.txt", "s3://elsewhere/a.txt")...)
	assert.ErrorContains(t, err, "Cross-container")
}

func TestCLI_URL(t *testing.T) {
	_, _ = fileStore(t, nil)

	out, err := runCLI(t, nil, "--account", "acct", "--container", "media", "url", "a/b.png")
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.windows.net/media/a/b.png\n", out)

	t.Setenv("AZURE_STORAGE_URL", "https://cdn.example.com")
	out, err = runCLI(t, nil, "url", "/a/b.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a/b.png\n", out)
}

func TestCLI_UploadAndBlobs(t *testing.T) {
	dir, flags := fileStore(t, nil)
	t.Setenv("AZURE_STORAGE_URL", "https://cdn.example.com")

	local := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(local, []byte("jpeg"), 0o644))

	out, err := runCLI(t, nil, append(flags, "upload", local, "img/photo.jpg")...)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/img/photo.jpg\n", out)
	_, err = os.Stat(filepath.Join(dir, "img", "photo.jpg"))
	require.NoError(t, err)

	out, err = runCLI(t, nil, append(flags, "blobs", "img/")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"name":"img/photo.jpg"`)

	_, err = runCLI(t, nil, append(flags, "upload", local, "--visibility", "world")...)
	assert.ErrorContains(t, err, "Upload failed")

	_, err = runCLI(t, nil, append(flags, "upload", local, "--timeout", "soon")...)
	assert.ErrorContains(t, err, "Invalid --timeout")
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("600")
	require.NoError(t, err)
	assert.Equal(t, "10m0s", d.String())

	d, err = parseDuration("90s")
	require.NoError(t, err)
	assert.Equal(t, "1m30s", d.String())

	_, err = parseDuration("later")
	assert.Error(t, err)
}

func TestCLI_ConfigInitAndValidate(t *testing.T) {
	dir, flags := fileStore(t, nil)
	path := filepath.Join(t.TempDir(), config.FileName)

	out, err := runCLI(t, nil, append(flags, "config", "init", "--path", path)...)
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	_, err = runCLI(t, nil, append(flags, "config", "init", "--path", path)...)
	assert.ErrorContains(t, err, "already exists")

	out, err = runCLI(t, nil, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
	assert.Equal(t, dir, appConfig.Storage.File.BaseDir)

	_, err = runCLI(t, nil, "--provider", "file", "config", "validate")
	assert.ErrorContains(t, err, "base_dir is required")
}

func TestCLI_Version(t *testing.T) {
	_, _ = fileStore(t, nil)
	orig := versionInfo
	defer func() { versionInfo = orig }()
	SetVersionInfo("1.2.3", "abc", "2026-01-01")

	out, err := runCLI(t, nil, "version", "--json")
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "1.2.3", v["version"])
	assert.Equal(t, "abc", v["commit"])

	out, err = runCLI(t, nil, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "blobfs 1.2.3"), out)
}

func TestCLI_Doctor(t *testing.T) {
	_, flags := fileStore(t, nil)

	_, err := runCLI(t, nil, append(flags, "doctor")...)
	require.NoError(t, err)

	_, err = runCLI(t, nil, "--provider", "file", "--base-dir", filepath.Join(t.TempDir(), "missing"), "--log-level", "error", "doctor")
	assert.ErrorContains(t, err, "Diagnostics failed")
}
