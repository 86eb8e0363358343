//go:build cloudintegration

package azure_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/blobfs/pkg/listing"
	"github.com/3leaps/blobfs/pkg/provider"
	"github.com/3leaps/blobfs/pkg/provider/azure"
	"github.com/3leaps/blobfs/test/cloudtest"
)

func newAzuriteProvider(t *testing.T, ctx context.Context, container string) *azure.Provider {
	t.Helper()
	p, err := azure.New(ctx, azure.Config{
		Container:        container,
		ConnectionString: cloudtest.AzuriteConnectionString,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProvider_List_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfAzuriteUnavailable(t)
	ctx := context.Background()

	container := cloudtest.CreateContainer(t, ctx)
	cloudtest.PutBlobs(t, ctx, container, []string{"data/file1.txt", "data/file2.txt", "other/file3.txt"})
	p := newAzuriteProvider(t, ctx, container)

	t.Run("filters by prefix", func(t *testing.T) {
		result, err := p.List(ctx, provider.ListOptions{Prefix: "data/"})
		require.NoError(t, err)
		assert.Len(t, result.Objects, 2)
		for _, obj := range result.Objects {
			assert.Contains(t, obj.Key, "data/")
			assert.NotEmpty(t, obj.ETag)
			assert.False(t, obj.LastModified.IsZero())
		}
	})

	t.Run("paginates with marker", func(t *testing.T) {
		first, err := p.List(ctx, provider.ListOptions{MaxKeys: 2})
		require.NoError(t, err)
		assert.Len(t, first.Objects, 2)
		require.True(t, first.IsTruncated)

		second, err := p.List(ctx, provider.ListOptions{MaxKeys: 2, ContinuationToken: first.ContinuationToken})
		require.NoError(t, err)
		assert.Len(t, second.Objects, 1)
		assert.False(t, second.IsTruncated)
	})

	t.Run("missing container", func(t *testing.T) {
		missing := newAzuriteProvider(t, ctx, "does-not-exist-12345")
		_, err := missing.List(ctx, provider.ListOptions{})
		assert.True(t, provider.IsContainerNotFound(err))
		assert.True(t, provider.IsContainerNotFound(missing.CheckHealth(ctx)))
	})
}

func TestProvider_ObjectLifecycle_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfAzuriteUnavailable(t)
	ctx := context.Background()

	container := cloudtest.CreateContainer(t, ctx)
	p := newAzuriteProvider(t, ctx, container)

	content := []byte("hello azure")
	require.NoError(t, p.PutObject(ctx, "docs/a.txt", bytes.NewReader(content), int64(len(content)), provider.PutOptions{
		ContentType:  "text/plain",
		CacheControl: "max-age=60",
		Metadata:     map[string]string{"owner": "blobfs"},
	}))

	meta, err := p.Head(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), meta.Size)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, "max-age=60", meta.CacheControl)
	assert.Equal(t, "blobfs", meta.Metadata["owner"])

	require.NoError(t, p.CopyObject(ctx, "docs/a.txt", "docs/b.txt"))

	body, size, err := p.GetObject(ctx, "docs/b.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(body)
	require.NoError(t, body.Close())
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, int64(len(content)), size)

	require.NoError(t, p.DeleteObject(ctx, "docs/a.txt"))
	_, err = p.Head(ctx, "docs/a.txt")
	assert.True(t, provider.IsNotFound(err))

	err = p.DeleteObject(ctx, "docs/a.txt")
	assert.True(t, provider.IsNotFound(err))
}

func TestEngine_OverAzurite_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfAzuriteUnavailable(t)
	ctx := context.Background()

	container := cloudtest.CreateContainer(t, ctx)
	cloudtest.PutBlobs(t, ctx, container, []string{"a/", "a/x.txt", "a/sub/y.txt", "a/sub/z.txt", "b.txt"})
	p := newAzuriteProvider(t, ctx, container)

	engine := listing.New(p, listing.Config{PageSize: 2})

	shallow, err := engine.List(ctx, "/a/", false).Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"a/sub/", "a/x.txt"}, paths(shallow))

	deep, err := engine.List(ctx, "a", true).Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"a/sub/y.txt", "a/sub/z.txt", "a/x.txt"}, paths(deep))

	root, err := engine.List(ctx, "", false).Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"a/", "b.txt"}, paths(root))
}

func paths(nodes []listing.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Path)
	}
	return out
}
