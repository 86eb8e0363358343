package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/blobfs/pkg/listing"
	"github.com/3leaps/blobfs/pkg/provider"
	"github.com/3leaps/blobfs/pkg/provider/file"
)

type failureCounter struct {
	mu  sync.Mutex
	ops map[string]int
}

func (c *failureCounter) OperationFailed(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ops == nil {
		c.ops = map[string]int{}
	}
	c.ops[op]++
}

func newMemAdapter(t *testing.T, files map[string]string) (*Adapter, *failureCounter) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data", 0o755))
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, "/data/"+name, []byte(content), 0o644))
	}
	p, err := file.New(file.Config{BaseDir: "/data", Fs: fs})
	require.NoError(t, err)

	obs := &failureCounter{}
	return New(p, Config{Listing: listing.Config{PageSize: 2}, Observer: obs}), obs
}

func nodePaths(t *testing.T, l *listing.Listing) []string {
	t.Helper()
	nodes, err := l.Collect()
	require.NoError(t, err)
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Path)
	}
	return out
}

func TestFileExists(t *testing.T) {
	a, _ := newMemAdapter(t, map[string]string{"docs/a.txt": "a"})
	ctx := context.Background()

	ok, err := a.FileExists(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.FileExists(ctx, "/docs/a.txt")
	require.NoError(t, err)
	assert.True(t, ok, "leading separator is ignored")

	ok, err = a.FileExists(ctx, "docs/missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.FileExists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, ok, "a directory is not a file")
}

func TestDirectoryExists(t *testing.T) {
	a, _ := newMemAdapter(t, map[string]string{"docs/sub/a.txt": "a"})
	ctx := context.Background()

	for _, p := range []string{"docs", "docs/", "/docs/sub"} {
		ok, err := a.DirectoryExists(ctx, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}

	ok, err := a.DirectoryExists(ctx, "doc")
	require.NoError(t, err)
	assert.False(t, ok, "prefix must end at a segment boundary")

	require.NoError(t, a.CreateDirectory(ctx, "empty"))
	ok, err = a.DirectoryExists(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, ok, "explicit marker counts")
}

func TestWriteRead(t *testing.T) {
	a, _ := newMemAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "notes/today.txt", []byte("remember the milk"), WriteOptions{}))

	data, err := a.Read(ctx, "notes/today.txt")
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", string(data))

	size, err := a.FileSize(ctx, "notes/today.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(17), size)

	mt, err := a.MimeType(ctx, "notes/today.txt")
	require.NoError(t, err)
	assert.Contains(t, mt, "text/plain")

	lm, err := a.LastModified(ctx, "notes/today.txt")
	require.NoError(t, err)
	assert.False(t, lm.IsZero())
}

func TestWriteStream(t *testing.T) {
	a, _ := newMemAdapter(t, nil)
	ctx := context.Background()

	body := strings.Repeat("line of text\n", 1000)
	require.NoError(t, a.WriteStream(ctx, "big.txt", strings.NewReader(body), WriteOptions{}))

	r, err := a.ReadStream(ctx, "big.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, r.Close())
	require.NoError(t, err)
	assert.Equal(t, body, string(got), "sniffed header is not lost")

	require.NoError(t, a.WriteStream(ctx, "tiny.txt", strings.NewReader("hi"), WriteOptions{ContentType: "text/plain"}))
	data, err := a.Read(ctx, "tiny.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestRead_Missing(t *testing.T) {
	a, obs := newMemAdapter(t, nil)

	_, err := a.Read(context.Background(), "nope.txt")
	require.Error(t, err)
	assert.True(t, IsOp(err, OpRead))
	assert.True(t, provider.IsNotFound(err))
	assert.Equal(t, 1, obs.ops["read"])
}

func TestStat_Missing(t *testing.T) {
	a, _ := newMemAdapter(t, nil)

	_, err := a.Stat(context.Background(), "nope.txt")
	assert.True(t, IsOp(err, OpRetrieveMetadata))
	assert.True(t, provider.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	a, _ := newMemAdapter(t, map[string]string{"a.txt": "a"})
	ctx := context.Background()

	require.NoError(t, a.Delete(ctx, "a.txt"))
	ok, err := a.FileExists(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, a.Delete(ctx, "a.txt"), "deleting a missing file succeeds")
}

func TestCreateDirectory(t *testing.T) {
	a, _ := newMemAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.CreateDirectory(ctx, "/photos/2024/"))
	require.NoError(t, a.CreateDirectory(ctx, ""))

	assert.Equal(t, []string{"photos/"}, nodePaths(t, a.ListContents(ctx, "", false)))
	assert.Equal(t, []string{"photos/2024/"}, nodePaths(t, a.ListContents(ctx, "photos", false)))
}

func TestListContents(t *testing.T) {
	a, _ := newMemAdapter(t, map[string]string{
		"a/x.txt":     "x",
		"a/sub/y.txt": "y",
		"a/sub/z.txt": "z",
		"b.txt":       "b",
	})
	ctx := context.Background()

	assert.Equal(t, []string{"a/", "b.txt"}, nodePaths(t, a.ListContents(ctx, "", false)))
	assert.Equal(t, []string{"a/sub/", "a/x.txt"}, nodePaths(t, a.ListContents(ctx, "a", false)))
	assert.Equal(t, []string{"a/sub/y.txt", "a/sub/z.txt", "a/x.txt"}, nodePaths(t, a.ListContents(ctx, "a/", true)))
	assert.Empty(t, nodePaths(t, a.ListContents(ctx, "missing", false)))
}

func TestDeleteDirectory(t *testing.T) {
	a, _ := newMemAdapter(t, map[string]string{
		"a/x.txt":       "x",
		"a/sub/y.txt":   "y",
		"a/sub/z.txt":   "z",
		"ab/keep.txt":   "k",
		"other/one.txt": "1",
	})
	ctx := context.Background()
	require.NoError(t, a.CreateDirectory(ctx, "a/empty"))

	require.NoError(t, a.DeleteDirectory(ctx, "a"))

	assert.Equal(t, []string{"ab/", "other/"}, nodePaths(t, a.ListContents(ctx, "", false)))
	ok, err := a.DirectoryExists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, a.DeleteDirectory(ctx, "a"), "deleting a missing directory succeeds")
}

func TestDeleteDirectory_RefusesRoot(t *testing.T) {
	a, _ := newMemAdapter(t, map[string]string{"a.txt": "a"})

	err := a.DeleteDirectory(context.Background(), "/")
	assert.ErrorIs(t, err, ErrRootDirectory)
	assert.True(t, IsOp(err, OpDeleteDirectory))
}

func TestCopyMove(t *testing.T) {
	a, _ := newMemAdapter(t, map[string]string{"src.txt": "payload"})
	ctx := context.Background()

	require.NoError(t, a.Copy(ctx, "src.txt", "copies/one.txt"))
	data, err := a.Read(ctx, "copies/one.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, a.Move(ctx, "src.txt", "moved.txt"))
	ok, err := a.FileExists(ctx, "src.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	data, err = a.Read(ctx, "moved.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	err = a.Move(ctx, "src.txt", "again.txt")
	require.Error(t, err)
	var oe *OperationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, OpMove, oe.Op)
	assert.Equal(t, "src.txt", oe.Path)
	assert.Equal(t, "again.txt", oe.Destination)
	assert.True(t, provider.IsNotFound(err))
}

func TestVisibilityUnsupported(t *testing.T) {
	a, obs := newMemAdapter(t, map[string]string{"a.txt": "a"})
	ctx := context.Background()

	err := a.SetVisibility(ctx, "a.txt", "public")
	assert.True(t, IsOp(err, OpSetVisibility))
	assert.True(t, provider.IsUnsupported(err))

	_, err = a.Visibility(ctx, "a.txt")
	assert.True(t, IsOp(err, OpRetrieveMetadata))
	assert.True(t, provider.IsUnsupported(err))

	assert.Equal(t, 1, obs.ops["set_visibility"])
}

// listOnlyProvider lists from a fixed key set and fails List calls on
// demand. It has no write capabilities.
type listOnlyProvider struct {
	keys    []string
	listErr error
	headErr error
}

func (p *listOnlyProvider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	res := &provider.ListResult{}
	for _, k := range p.keys {
		if strings.HasPrefix(k, opts.Prefix) {
			res.Objects = append(res.Objects, provider.ObjectSummary{Key: k})
		}
	}
	return res, nil
}

func (p *listOnlyProvider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	if p.headErr != nil {
		return nil, p.headErr
	}
	return &provider.ObjectMeta{ObjectSummary: provider.ObjectSummary{Key: key}}, nil
}

func (p *listOnlyProvider) Close() error { return nil }

func TestUnsupportedCapabilities(t *testing.T) {
	a := New(&listOnlyProvider{keys: []string{"a.txt"}}, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		op   Op
		call func() error
	}{
		{"write", OpWrite, func() error { return a.Write(ctx, "x", []byte("x"), WriteOptions{}) }},
		{"read", OpRead, func() error { _, err := a.Read(ctx, "x"); return err }},
		{"delete", OpDelete, func() error { return a.Delete(ctx, "x") }},
		{"create directory", OpCreateDirectory, func() error { return a.CreateDirectory(ctx, "d") }},
		{"copy", OpCopy, func() error { return a.Copy(ctx, "a", "b") }},
		{"move", OpMove, func() error { return a.Move(ctx, "a", "b") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.True(t, IsOp(err, tt.op))
			assert.True(t, provider.IsUnsupported(err))
		})
	}
}

func TestMimeType_Unavailable(t *testing.T) {
	a := New(&listOnlyProvider{}, Config{})

	_, err := a.MimeType(context.Background(), "a.bin")
	assert.ErrorIs(t, err, ErrNoMimeType)
	assert.True(t, IsOp(err, OpRetrieveMetadata))
}

func TestExistenceChecks_ProviderFailure(t *testing.T) {
	boom := &provider.ProviderError{Op: "Head", Provider: provider.ProviderAzureBlob, Err: provider.ErrAccessDenied}
	a := New(&listOnlyProvider{listErr: boom, headErr: boom}, Config{})
	ctx := context.Background()

	_, err := a.FileExists(ctx, "a.txt")
	assert.True(t, IsOp(err, OpCheckExistence))
	assert.True(t, provider.IsAccessDenied(err))

	_, err = a.DirectoryExists(ctx, "a")
	assert.True(t, IsOp(err, OpCheckExistence))
}

func TestListContents_FailureIsNotAnError(t *testing.T) {
	boom := errors.New("service unavailable")
	a := New(&listOnlyProvider{listErr: boom}, Config{})

	l := a.ListContents(context.Background(), "a", false)
	assert.False(t, l.Next())
	assert.ErrorIs(t, l.Err(), boom)
}

func TestOperationError_Error(t *testing.T) {
	err := &OperationError{Op: OpCopy, Path: "a", Destination: "b", Err: provider.ErrNotFound}
	assert.Equal(t, `unable to copy "a" to "b": object not found`, err.Error())

	err = &OperationError{Op: OpRead, Path: "a", Err: provider.ErrNotFound}
	assert.Equal(t, `unable to read "a": object not found`, err.Error())
}
