package cloudtest

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

const (
	// AzuriteAccountName is the fixed development account of Azurite.
	AzuriteAccountName = "devstoreaccount1"

	// AzuriteAccountKey is Azurite's published development key.
	AzuriteAccountKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

	// DefaultAzuriteEndpoint is the default Azurite blob service URL.
	DefaultAzuriteEndpoint = "http://127.0.0.1:10000/devstoreaccount1"
)

var (
	// AzuriteEndpoint is the blob endpoint, configurable via AZURITE_BLOB_ENDPOINT.
	AzuriteEndpoint = getEnvOrDefault("AZURITE_BLOB_ENDPOINT", DefaultAzuriteEndpoint)

	// AzuriteConnectionString is configurable via AZURITE_CONNECTION_STRING.
	AzuriteConnectionString = getEnvOrDefault("AZURITE_CONNECTION_STRING",
		"DefaultEndpointsProtocol=http;AccountName="+AzuriteAccountName+
			";AccountKey="+AzuriteAccountKey+
			";BlobEndpoint="+AzuriteEndpoint+";")

	azClient     *azblob.Client
	azClientOnce sync.Once
	azClientErr  error
)

// AzuriteAvailable checks if the Azurite blob service answers HTTP.
// Any response counts; an anonymous request is expected to be rejected.
func AzuriteAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, AzuriteEndpoint+"?comp=list", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// SkipIfAzuriteUnavailable skips the test if Azurite is not running.
func SkipIfAzuriteUnavailable(t *testing.T) {
	t.Helper()
	if !AzuriteAvailable() {
		t.Skipf("azurite not available at %s (start with: docker run -p 10000:10000 mcr.microsoft.com/azure-storage/azurite azurite-blob --blobHost 0.0.0.0)", AzuriteEndpoint)
	}
}

// AzureClient returns a shared client for Azurite.
func AzureClient() (*azblob.Client, error) {
	azClientOnce.Do(func() {
		azClient, azClientErr = azblob.NewClientFromConnectionString(AzuriteConnectionString, nil)
	})
	return azClient, azClientErr
}

// AzureClientT returns the Azurite client, failing the test on error.
func AzureClientT(t *testing.T) *azblob.Client {
	t.Helper()
	c, err := AzureClient()
	if err != nil {
		t.Fatalf("failed to create azblob client: %v", err)
	}
	return c
}

// CreateContainer creates a uniquely named container and registers cleanup.
func CreateContainer(t *testing.T, ctx context.Context) string {
	t.Helper()

	c := AzureClientT(t)
	name := uniqueName(t)
	if _, err := c.CreateContainer(ctx, name, nil); err != nil {
		t.Fatalf("failed to create container %s: %v", name, err)
	}

	t.Cleanup(func() {
		if _, err := c.DeleteContainer(context.Background(), name, nil); err != nil {
			t.Logf("warning: failed to delete container %s: %v", name, err)
		}
	})
	return name
}

// PutBlob uploads a block blob.
func PutBlob(t *testing.T, ctx context.Context, container, key string, content []byte) {
	t.Helper()

	c := AzureClientT(t)
	if _, err := c.UploadBuffer(ctx, container, key, content, nil); err != nil {
		t.Fatalf("failed to put blob %s/%s: %v", container, key, err)
	}
}

// PutBlobs uploads one small blob per key, in order.
func PutBlobs(t *testing.T, ctx context.Context, container string, keys []string) {
	t.Helper()

	for _, key := range keys {
		PutBlob(t, ctx, container, key, []byte("test content for "+key))
	}
}
