package provider

import (
	"context"
	"io"
)

// Optional provider capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Provider interface remains intentionally small.

// PutOptions carries the HTTP-level properties stored with an object.
type PutOptions struct {
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// ObjectPutter can create/overwrite objects.
//
// A key ending in "/" with an empty body creates a directory marker.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentLength int64, opts PutOptions) error
}

// ObjectDeleter can delete objects.
//
// Implementations return ErrNotFound (wrapped) for missing keys; callers
// decide whether that is a failure.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// ObjectGetter can download objects as a stream.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) (body io.ReadCloser, contentLength int64, err error)
}

// ObjectCopier performs a server-side copy inside the same container.
type ObjectCopier interface {
	CopyObject(ctx context.Context, srcKey, dstKey string) error
}

// HealthChecker verifies that the backing container is reachable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}
