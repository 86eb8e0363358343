// Package storage exposes a blob container as a filesystem: files, explicit
// or implied directories, metadata and streaming reads and writes.
//
// Every failure is returned as an *OperationError naming the operation.
// Directory listings come from package listing and never fail; the cause of
// a cut-short listing is on Listing.Err.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/3leaps/blobfs/pkg/listing"
	"github.com/3leaps/blobfs/pkg/provider"
)

// sniffLen is how much of a stream is buffered for content type detection.
const sniffLen = 3072

// Observer receives adapter failures. Implementations must be safe for
// concurrent use.
type Observer interface {
	OperationFailed(op string)
}

// Config configures an Adapter.
type Config struct {
	// Listing configures the engine used by ListContents and DeleteDirectory.
	Listing listing.Config

	// Logger receives debug output for failed operations. Nil disables logging.
	Logger *zap.Logger

	// Observer counts failures by operation. Optional.
	Observer Observer
}

// Attributes is the metadata of a single file.
type Attributes struct {
	Path         string
	Size         int64
	LastModified time.Time
	MimeType     string
	ETag         string
	CacheControl string
	Metadata     map[string]string
}

// WriteOptions carries the properties stored with a written file.
type WriteOptions struct {
	// ContentType overrides content detection.
	ContentType string

	CacheControl string
	Metadata     map[string]string
}

// Adapter is a filesystem view over one provider.
type Adapter struct {
	prov     provider.Provider
	engine   *listing.Engine
	log      *zap.Logger
	observer Observer
}

// New creates an adapter over p.
func New(p provider.Provider, cfg Config) *Adapter {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Listing.Logger == nil {
		cfg.Listing.Logger = log
	}
	return &Adapter{
		prov:     p,
		engine:   listing.New(p, cfg.Listing),
		log:      log,
		observer: cfg.Observer,
	}
}

// Engine returns the listing engine used by the adapter.
func (a *Adapter) Engine() *listing.Engine {
	return a.engine
}

// Provider returns the underlying provider.
func (a *Adapter) Provider() provider.Provider {
	return a.prov
}

// FileExists reports whether a file is stored at path.
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	_, err := a.prov.Head(ctx, fileKey(path))
	if err == nil {
		return true, nil
	}
	if provider.IsNotFound(err) {
		return false, nil
	}
	return false, a.fail(OpCheckExistence, path, "", err)
}

// DirectoryExists reports whether any key, marker included, is stored
// below path.
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	res, err := a.prov.List(ctx, provider.ListOptions{Prefix: listing.DirPrefix(path), MaxKeys: 1})
	if err != nil {
		return false, a.fail(OpCheckExistence, path, "", err)
	}
	return len(res.Objects) > 0, nil
}

// Write stores contents at path, replacing any existing file.
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, opts WriteOptions) error {
	if opts.ContentType == "" {
		opts.ContentType = mimetype.Detect(contents).String()
	}
	return a.put(ctx, OpWrite, path, bytes.NewReader(contents), int64(len(contents)), opts)
}

// WriteStream stores the contents of r at path. The content type is
// detected from the first bytes of r unless given.
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, opts WriteOptions) error {
	if opts.ContentType == "" {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(r, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return a.fail(OpWrite, path, "", err)
		}
		head = head[:n]
		opts.ContentType = mimetype.Detect(head).String()
		r = io.MultiReader(bytes.NewReader(head), r)
	}
	return a.put(ctx, OpWrite, path, r, -1, opts)
}

func (a *Adapter) put(ctx context.Context, op Op, path string, r io.Reader, size int64, opts WriteOptions) error {
	putter, ok := a.prov.(provider.ObjectPutter)
	if !ok {
		return a.fail(op, path, "", provider.ErrUnsupported)
	}
	err := putter.PutObject(ctx, fileKey(path), r, size, provider.PutOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		Metadata:     opts.Metadata,
	})
	if err != nil {
		return a.fail(op, path, "", err)
	}
	return nil
}

// Read returns the full contents of the file at path.
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	body, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, a.fail(OpRead, path, "", err)
	}
	return data, nil
}

// ReadStream opens the file at path. The caller closes the stream.
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	getter, ok := a.prov.(provider.ObjectGetter)
	if !ok {
		return nil, a.fail(OpRead, path, "", provider.ErrUnsupported)
	}
	body, _, err := getter.GetObject(ctx, fileKey(path))
	if err != nil {
		return nil, a.fail(OpRead, path, "", err)
	}
	return body, nil
}

// Delete removes the file at path. Deleting a missing file succeeds.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := a.deleteKey(ctx, fileKey(path)); err != nil {
		return a.fail(OpDelete, path, "", err)
	}
	return nil
}

// DeleteDirectory removes every key below path, then the directory marker.
//
// A listing cut short by a failed prefix query is reported as an error;
// keys deleted before the failure stay deleted.
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	prefix := listing.DirPrefix(path)
	if prefix == "" {
		return a.fail(OpDeleteDirectory, path, "", ErrRootDirectory)
	}

	l := a.engine.List(ctx, path, true)
	for l.Next() {
		if err := a.deleteKey(ctx, l.Node().Path); err != nil {
			return a.fail(OpDeleteDirectory, path, "", err)
		}
	}
	if err := l.Err(); err != nil {
		return a.fail(OpDeleteDirectory, path, "", err)
	}

	if err := a.deleteKey(ctx, prefix); err != nil {
		return a.fail(OpDeleteDirectory, path, "", err)
	}
	return nil
}

// deleteKey deletes one key, treating a missing key as deleted.
func (a *Adapter) deleteKey(ctx context.Context, key string) error {
	deleter, ok := a.prov.(provider.ObjectDeleter)
	if !ok {
		return provider.ErrUnsupported
	}
	if err := deleter.DeleteObject(ctx, key); err != nil && !provider.IsNotFound(err) {
		return err
	}
	return nil
}

// CreateDirectory stores an empty directory marker for path.
// Creating the root is a no-op.
func (a *Adapter) CreateDirectory(ctx context.Context, path string) error {
	prefix := listing.DirPrefix(path)
	if prefix == "" {
		return nil
	}
	putter, ok := a.prov.(provider.ObjectPutter)
	if !ok {
		return a.fail(OpCreateDirectory, path, "", provider.ErrUnsupported)
	}
	if err := putter.PutObject(ctx, prefix, bytes.NewReader(nil), 0, provider.PutOptions{}); err != nil {
		return a.fail(OpCreateDirectory, path, "", err)
	}
	return nil
}

// SetVisibility is not supported: blob containers carry access policy at
// the container level only.
func (a *Adapter) SetVisibility(ctx context.Context, path, visibility string) error {
	_, _ = ctx, visibility
	return a.fail(OpSetVisibility, path, "", provider.ErrUnsupported)
}

// Visibility is not supported; see SetVisibility.
func (a *Adapter) Visibility(ctx context.Context, path string) (string, error) {
	_ = ctx
	return "", a.fail(OpRetrieveMetadata, path, "", provider.ErrUnsupported)
}

// Stat returns all stored attributes of the file at path.
func (a *Adapter) Stat(ctx context.Context, path string) (*Attributes, error) {
	meta, err := a.prov.Head(ctx, fileKey(path))
	if err != nil {
		return nil, a.fail(OpRetrieveMetadata, path, "", err)
	}
	return &Attributes{
		Path:         meta.Key,
		Size:         meta.Size,
		LastModified: meta.LastModified,
		MimeType:     meta.ContentType,
		ETag:         meta.ETag,
		CacheControl: meta.CacheControl,
		Metadata:     meta.Metadata,
	}, nil
}

// MimeType returns the stored content type of the file at path.
func (a *Adapter) MimeType(ctx context.Context, path string) (string, error) {
	attrs, err := a.Stat(ctx, path)
	if err != nil {
		return "", err
	}
	if attrs.MimeType == "" {
		return "", a.fail(OpRetrieveMetadata, path, "", ErrNoMimeType)
	}
	return attrs.MimeType, nil
}

// LastModified returns the modification time of the file at path.
func (a *Adapter) LastModified(ctx context.Context, path string) (time.Time, error) {
	attrs, err := a.Stat(ctx, path)
	if err != nil {
		return time.Time{}, err
	}
	return attrs.LastModified, nil
}

// FileSize returns the size in bytes of the file at path.
func (a *Adapter) FileSize(ctx context.Context, path string) (int64, error) {
	attrs, err := a.Stat(ctx, path)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

// ListContents lists the directory at path; see listing.Engine.List.
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) *listing.Listing {
	return a.engine.List(ctx, path, deep)
}

// Copy copies the file at src to dst inside the container.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	if err := a.copyKey(ctx, src, dst); err != nil {
		return a.fail(OpCopy, src, dst, err)
	}
	return nil
}

// Move copies src to dst, then deletes src.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := a.copyKey(ctx, src, dst); err != nil {
		return a.fail(OpMove, src, dst, err)
	}
	if err := a.deleteKey(ctx, fileKey(src)); err != nil {
		return a.fail(OpMove, src, dst, err)
	}
	return nil
}

func (a *Adapter) copyKey(ctx context.Context, src, dst string) error {
	copier, ok := a.prov.(provider.ObjectCopier)
	if !ok {
		return provider.ErrUnsupported
	}
	return copier.CopyObject(ctx, fileKey(src), fileKey(dst))
}

// fail wraps err as an OperationError and reports it.
func (a *Adapter) fail(op Op, path, dst string, err error) error {
	a.log.Debug("Storage operation failed",
		zap.String("op", string(op)),
		zap.String("path", path),
		zap.String("destination", dst),
		zap.Error(err),
	)
	if a.observer != nil {
		a.observer.OperationFailed(string(op))
	}
	return &OperationError{Op: op, Path: path, Destination: dst, Err: err}
}

// fileKey maps a file path to its stored key: no leading or trailing
// separator, nothing else changed.
func fileKey(path string) string {
	return strings.TrimLeft(listing.FilePath(path), listing.Separator)
}
