package azure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/3leaps/blobfs/pkg/provider"
)

// copyPollInterval is how often a pending server-side copy is re-checked.
var copyPollInterval = 250 * time.Millisecond

// Provider implements provider.Provider for Azure Blob Storage.
type Provider struct {
	client    *azblob.Client
	container *container.Client
	name      string
	maxKeys   int
}

// Ensure Provider implements the interfaces.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.ObjectGetter  = (*Provider)(nil)
	_ provider.ObjectPutter  = (*Provider)(nil)
	_ provider.ObjectDeleter = (*Provider)(nil)
	_ provider.ObjectCopier  = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)

// New creates a new Azure Blob provider with the given configuration.
//
// Key and SAS authentication go through a connection string; identity
// mode uses azidentity's default credential chain.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	_ = ctx
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := newClient(cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:        "New",
			Provider:  provider.ProviderAzureBlob,
			Container: cfg.Container,
			Err:       err,
		}
	}

	return NewFromClient(client, cfg.Container, cfg.MaxKeys), nil
}

// NewFromClient wraps an existing SDK client.
func NewFromClient(client *azblob.Client, containerName string, maxKeys int) *Provider {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Provider{
		client:    client,
		container: client.ServiceClient().NewContainerClient(containerName),
		name:      containerName,
		maxKeys:   maxKeys,
	}
}

func newClient(cfg Config) (*azblob.Client, error) {
	if cfg.ConnectionString == "" && cfg.ResolvedAuthMode() == AuthIdentity {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, err
		}
		return azblob.NewClient(cfg.ServiceURL(), cred, nil)
	}
	return azblob.NewClientFromConnectionString(cfg.ConnectionStringValue(), nil)
}

// Container returns the container name.
func (p *Provider) Container() string {
	return p.name
}

// URL returns the blob URL for key as seen by the client.
func (p *Provider) URL(key string) string {
	return p.container.NewBlobClient(key).URL()
}

// List returns one page of blobs with the given prefix, in service order.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	maxKeys := clampMaxKeys(opts.MaxKeys, p.maxKeys)

	listOpts := &container.ListBlobsFlatOptions{
		MaxResults: to.Ptr(int32(maxKeys)),
	}
	if opts.Prefix != "" {
		listOpts.Prefix = to.Ptr(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		listOpts.Marker = to.Ptr(opts.ContinuationToken)
	}

	pager := p.container.NewListBlobsFlatPager(listOpts)
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, p.wrapError("List", "", err)
	}

	result := &provider.ListResult{}
	if resp.Segment != nil {
		result.Objects = make([]provider.ObjectSummary, 0, len(resp.Segment.BlobItems))
		for _, item := range resp.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			result.Objects = append(result.Objects, summaryFromItem(item))
		}
	}

	if next := to.Deref(resp.NextMarker); next != "" {
		result.ContinuationToken = next
		result.IsTruncated = true
	}
	return result, nil
}

func summaryFromItem(item *container.BlobItem) provider.ObjectSummary {
	obj := provider.ObjectSummary{Key: *item.Name}
	if props := item.Properties; props != nil {
		obj.Size = to.Deref(props.ContentLength)
		obj.ContentType = to.Deref(props.ContentType)
		obj.LastModified = to.Deref(props.LastModified)
		if props.ETag != nil {
			obj.ETag = cleanETag(string(*props.ETag))
		}
	}
	return obj
}

// Head returns metadata for a single blob.
func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	props, err := p.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}

	meta := &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          key,
			Size:         to.Deref(props.ContentLength),
			LastModified: to.Deref(props.LastModified),
			ContentType:  to.Deref(props.ContentType),
		},
		CacheControl: to.Deref(props.CacheControl),
	}
	if props.ETag != nil {
		meta.ETag = cleanETag(string(*props.ETag))
	}
	if len(props.Metadata) > 0 {
		meta.Metadata = make(map[string]string, len(props.Metadata))
		for k, v := range props.Metadata {
			meta.Metadata[k] = to.Deref(v)
		}
	}
	return meta, nil
}

// GetObject downloads a blob as a stream. The caller closes the body.
func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	resp, err := p.client.DownloadStream(ctx, p.name, key, nil)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	return resp.Body, to.Deref(resp.ContentLength), nil
}

// PutObject uploads a block blob, overwriting any existing blob.
func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64, opts provider.PutOptions) error {
	_ = contentLength
	uploadOpts := &azblob.UploadStreamOptions{}

	if opts.ContentType != "" || opts.CacheControl != "" {
		headers := &blob.HTTPHeaders{}
		if opts.ContentType != "" {
			headers.BlobContentType = to.Ptr(opts.ContentType)
		}
		if opts.CacheControl != "" {
			headers.BlobCacheControl = to.Ptr(opts.CacheControl)
		}
		uploadOpts.HTTPHeaders = headers
	}
	if len(opts.Metadata) > 0 {
		uploadOpts.Metadata = make(map[string]*string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			uploadOpts.Metadata[k] = to.Ptr(v)
		}
	}

	if body == nil {
		body = strings.NewReader("")
	}
	if _, err := p.client.UploadStream(ctx, p.name, key, body, uploadOpts); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	return nil
}

// DeleteObject deletes a blob.
func (p *Provider) DeleteObject(ctx context.Context, key string) error {
	if _, err := p.client.DeleteBlob(ctx, p.name, key, nil); err != nil {
		return p.wrapError("DeleteObject", key, err)
	}
	return nil
}

// CopyObject copies srcKey to dstKey inside the container and waits for
// the copy to leave the pending state.
func (p *Provider) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	src := p.container.NewBlobClient(srcKey)
	dst := p.container.NewBlobClient(dstKey)

	resp, err := dst.StartCopyFromURL(ctx, src.URL(), nil)
	if err != nil {
		return p.wrapError("CopyObject", srcKey, err)
	}

	status := to.Deref(resp.CopyStatus)
	for status == blob.CopyStatusTypePending {
		select {
		case <-ctx.Done():
			return p.wrapError("CopyObject", srcKey, ctx.Err())
		case <-time.After(copyPollInterval):
		}
		props, err := dst.GetProperties(ctx, nil)
		if err != nil {
			return p.wrapError("CopyObject", dstKey, err)
		}
		status = to.Deref(props.CopyStatus)
	}

	switch status {
	case blob.CopyStatusTypeAborted, blob.CopyStatusTypeFailed:
		return p.wrapError("CopyObject", srcKey, errors.New("copy "+string(status)))
	}
	return nil
}

// CheckHealth verifies the container is reachable with the configured credentials.
func (p *Provider) CheckHealth(ctx context.Context) error {
	if _, err := p.container.GetProperties(ctx, nil); err != nil {
		return p.wrapError("CheckHealth", "", err)
	}
	return nil
}

// Close releases any resources held by the provider.
// The SDK client doesn't require explicit cleanup.
func (p *Provider) Close() error {
	return nil
}

// wrapError converts Azure SDK errors to provider errors with sentinel errors.
func (p *Provider) wrapError(op, key string, err error) error {
	return wrapError(p.name, op, key, err)
}

func wrapError(containerName, op, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:        op,
		Provider:  provider.ProviderAzureBlob,
		Container: containerName,
		Key:       key,
		Err:       err,
	}

	if sentinel := classify(err); sentinel != nil {
		wrapped.Err = sentinel
		wrapped.Cause = err
	}
	return wrapped
}

// classify maps an SDK error to a provider sentinel, or nil.
func classify(err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ResourceNotFound):
		return provider.ErrNotFound
	case bloberror.HasCode(err, bloberror.ContainerNotFound, bloberror.ContainerBeingDeleted):
		return provider.ErrContainerNotFound
	case bloberror.HasCode(err, bloberror.AuthenticationFailed):
		return provider.ErrInvalidCredentials
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthorizationPermissionMismatch, bloberror.InsufficientAccountPermissions):
		return provider.ErrAccessDenied
	case bloberror.HasCode(err, bloberror.ServerBusy):
		return provider.ErrThrottled
	case bloberror.HasCode(err, bloberror.InternalError, bloberror.OperationTimedOut):
		return provider.ErrProviderUnavailable
	}

	// HEAD responses carry no error body; fall back to the status code.
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return provider.ErrNotFound
		case http.StatusUnauthorized:
			return provider.ErrInvalidCredentials
		case http.StatusForbidden:
			return provider.ErrAccessDenied
		case http.StatusTooManyRequests:
			return provider.ErrThrottled
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return provider.ErrProviderUnavailable
		}
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return provider.ErrProviderUnavailable
	}
	return nil
}

// cleanETag removes surrounding quotes from an ETag value.
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// clampMaxKeys applies defaults and limits to maxKeys values.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}
