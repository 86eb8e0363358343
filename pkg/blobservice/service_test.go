package blobservice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/blobfs/pkg/provider"
	"github.com/3leaps/blobfs/pkg/provider/file"
)

func newMemService(t *testing.T, cfg Config) (*Service, *file.Provider) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/blobs", 0o755))
	p, err := file.New(file.Config{BaseDir: "/blobs", Fs: fs})
	require.NoError(t, err)
	if cfg.AccountName == "" {
		cfg.AccountName = "acct"
	}
	if cfg.Container == "" {
		cfg.Container = "media"
	}
	return New(p, cfg), p
}

func TestURL(t *testing.T) {
	s, _ := newMemService(t, Config{})
	assert.Equal(t, "https://acct.blob.core.windows.net/media/a/b.png", s.URL("a/b.png"))

	s, _ = newMemService(t, Config{BaseURL: "https://cdn.example.com/assets/"})
	assert.Equal(t, "https://cdn.example.com/assets/a/b.png", s.URL("/a/b.png"))
}

func TestUpload(t *testing.T) {
	s, p := newMemService(t, Config{})
	ctx := context.Background()

	url, err := s.Upload(ctx, "docs/readme.txt", strings.NewReader("hello"), UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.windows.net/media/docs/readme.txt", url)

	meta, err := p.Head(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)
}

func TestUpload_Unique(t *testing.T) {
	s, _ := newMemService(t, Config{})
	s.suffix = func() string { return "abcd1234" }
	ctx := context.Background()

	url, err := s.Upload(ctx, "img/photo.jpg", strings.NewReader("x"), UploadOptions{Unique: true})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, "/img/photo_abcd1234.jpg"), url)

	ok, err := s.Exists(ctx, "img/photo_abcd1234.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUniqueName(t *testing.T) {
	s, _ := newMemService(t, Config{})
	s.suffix = func() string { return "00000000" }

	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "photo_00000000.jpg"},
		{"dir/archive.tar.gz", "dir/archive.tar_00000000.gz"},
		{"README", "README_00000000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, s.uniqueName(tt.in))
		})
	}
}

func TestRandomSuffix(t *testing.T) {
	a, b := randomSuffix(), randomSuffix()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}

func TestUpload_Validation(t *testing.T) {
	s, _ := newMemService(t, Config{})
	ctx := context.Background()

	_, err := s.Upload(ctx, "", strings.NewReader("x"), UploadOptions{})
	assert.Error(t, err)

	_, err = s.Upload(ctx, "a.txt", strings.NewReader("x"), UploadOptions{Visibility: "world"})
	assert.ErrorIs(t, err, ErrInvalidVisibility)
}

func TestDownloadDeleteExists(t *testing.T) {
	s, _ := newMemService(t, Config{})
	ctx := context.Background()

	_, err := s.Upload(ctx, "a.bin", bytes.NewReader([]byte{1, 2, 3}), UploadOptions{ContentType: "application/octet-stream"})
	require.NoError(t, err)

	data, err := s.Download(ctx, "a.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	require.NoError(t, s.Delete(ctx, "a.bin"))
	ok, err := s.Exists(ctx, "a.bin")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Download(ctx, "a.bin")
	assert.True(t, provider.IsNotFound(err))

	assert.NoError(t, s.Delete(ctx, "a.bin"), "second delete of the same blob")
}

func TestDelete_MissingBlobSucceeds(t *testing.T) {
	s, _ := newMemService(t, Config{})
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "never-uploaded.txt"))

	ok, err := s.Exists(ctx, "never-uploaded.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListBlobs(t *testing.T) {
	s, _ := newMemService(t, Config{})
	ctx := context.Background()

	for _, name := range []string{"logs/1.txt", "logs/2.txt", "logs/3.txt", "other.txt"} {
		_, err := s.Upload(ctx, name, strings.NewReader(name), UploadOptions{})
		require.NoError(t, err)
	}

	blobs, err := s.ListBlobs(ctx, "logs/", 0)
	require.NoError(t, err)
	require.Len(t, blobs, 3)
	assert.Equal(t, "logs/1.txt", blobs[0].Name)
	assert.Equal(t, "https://acct.blob.core.windows.net/media/logs/1.txt", blobs[0].URL)
	assert.Equal(t, int64(len("logs/1.txt")), blobs[0].Size)
	assert.False(t, blobs[0].LastModified.IsZero())

	blobs, err = s.ListBlobs(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, blobs, 2)

	blobs, err = s.ListBlobs(ctx, "", 5000)
	require.NoError(t, err)
	assert.Len(t, blobs, 4)
}

func TestMaxOperationTime(t *testing.T) {
	s, _ := newMemService(t, Config{})
	assert.Equal(t, DefaultMaxOperationTime, s.MaxOperationTime())

	s.SetMaxOperationTime(2 * time.Minute)
	assert.Equal(t, 2*time.Minute, s.MaxOperationTime())

	s.SetMaxOperationTime(0)
	assert.Zero(t, s.MaxOperationTime())

	s, _ = newMemService(t, Config{MaxOperationTime: -1})
	assert.Zero(t, s.MaxOperationTime())
}

// blockingProvider blocks every transfer until its context ends.
type blockingProvider struct{}

func (blockingProvider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	return nil, provider.ErrNotFound
}

func (blockingProvider) Close() error { return nil }

func (blockingProvider) PutObject(ctx context.Context, key string, body io.Reader, n int64, opts provider.PutOptions) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingProvider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	<-ctx.Done()
	return nil, 0, ctx.Err()
}

func TestOperationsHonourTimeLimit(t *testing.T) {
	s := New(blockingProvider{}, Config{MaxOperationTime: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := s.Upload(ctx, "a.txt", strings.NewReader("x"), UploadOptions{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	_, err = s.Download(ctx, "a.txt")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	_, err = s.ListBlobs(ctx, "", 2000)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	ok, err := s.Exists(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.Delete(ctx, "a.txt")
	assert.True(t, provider.IsUnsupported(err))
}
