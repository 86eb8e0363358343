// Package provider defines abstractions for flat blob storage backends.
//
// Providers expose a small surface: paged prefix listing, single-object
// metadata, and optional capability interfaces for reads, writes, deletes
// and server-side copies. Directory semantics are not a provider concern;
// see package listing.
package provider

import (
	"context"
	"time"
)

// Provider abstracts blob storage listing and metadata operations.
//
// Implementations should:
//   - Return keys exactly as stored (no normalization)
//   - Support pagination via continuation tokens
//   - Be safe for concurrent use
type Provider interface {
	Lister

	// Head returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Lister is the prefix query capability consumed by the listing engine.
type Lister interface {
	// List returns a page of objects with the given prefix.
	// Use ContinuationToken from ListResult for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	// Empty string lists the whole container.
	Prefix string

	// Recursive hints whether the caller wants the full subtree.
	// Providers may ignore it and always return a flat listing.
	Recursive bool

	// ContinuationToken resumes listing from a previous ListResult.
	ContinuationToken string

	// MaxKeys limits the number of objects returned per page.
	// Zero uses provider default (typically 1000).
	MaxKeys int
}

// ListResult contains a page of objects from a List operation.
type ListResult struct {
	// Objects are returned in store order.
	Objects []ObjectSummary

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// ObjectSummary contains the metadata returned from List operations.
type ObjectSummary struct {
	// Key is the full object key in the container.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ETag is the entity tag with surrounding quotes removed.
	ETag string

	// LastModified is when the object was last modified.
	LastModified time.Time

	// ContentType is the MIME type, when the backend reports it on listing.
	ContentType string
}

// ObjectMeta contains full metadata for a single object.
type ObjectMeta struct {
	ObjectSummary

	// CacheControl is the stored Cache-Control header, if any.
	CacheControl string

	// Metadata contains user-defined metadata key-value pairs.
	Metadata map[string]string
}

// ProviderType identifies a storage backend.
type ProviderType string

const (
	// ProviderAzureBlob represents Azure Blob Storage (and Azurite).
	ProviderAzureBlob ProviderType = "azblob"

	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents a local directory tree.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
