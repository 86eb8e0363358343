package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/blobfs/pkg/listing"
	"github.com/3leaps/blobfs/pkg/provider/file"
	"github.com/3leaps/blobfs/pkg/storage"
)

func TestListingObserver(t *testing.T) {
	m := New()

	m.PageFetched(false)
	m.PageFetched(true)
	m.PageFetched(true)
	m.NodeEmitted(listing.KindFile)
	m.NodeEmitted(listing.KindDirectory)
	m.NodeEmitted(listing.KindDirectory)
	m.ListingTruncated(errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.pagesFetched.WithLabelValues("shallow")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pagesFetched.WithLabelValues("recursive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodesEmitted.WithLabelValues("file")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.nodesEmitted.WithLabelValues("dir")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.listingsTruncated))
}

func TestObserversWiredThroughAdapter(t *testing.T) {
	m := New()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/a/one.txt", []byte("1"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/top.txt", []byte("2"), 0o644))

	p, err := file.New(file.Config{BaseDir: "/data", Fs: fs})
	require.NoError(t, err)

	a := storage.New(p, storage.Config{
		Listing:  listing.Config{Observer: m},
		Observer: m,
	})

	nodes, err := a.ListContents(context.Background(), "", false).Collect()
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	_, err = a.Read(context.Background(), "missing.txt")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodesEmitted.WithLabelValues("dir")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodesEmitted.WithLabelValues("file")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.pagesFetched.WithLabelValues("shallow")), 1.0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationFailures.WithLabelValues("read")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/v1/list", http.StatusOK, 15*time.Millisecond)
	m.OperationFailed("write")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `blobfs_http_requests_total{method="GET",route="/v1/list",status="200"} 1`)
	assert.Contains(t, body, `blobfs_storage_operation_failures_total{op="write"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

var _ storage.Observer = (*Metrics)(nil)
