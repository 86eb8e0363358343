// Package blobservice is a small upload/download facade over a blob
// container: unique names, public URLs and a per-operation time limit.
package blobservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/blobfs/pkg/provider"
)

// DefaultMaxOperationTime bounds uploads, downloads and large listings.
const DefaultMaxOperationTime = 600 * time.Second

// largeListThreshold is the ListBlobs size above which the time limit applies.
const largeListThreshold = 1000

// Visibility values accepted by Upload.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// visibilityMetadataKey is the blob metadata entry that records visibility.
const visibilityMetadataKey = "visibility"

// ErrInvalidVisibility is returned for visibility values other than
// "public" and "private".
var ErrInvalidVisibility = errors.New("visibility must be public or private")

// Config configures a Service.
type Config struct {
	// AccountName is used to build default blob URLs.
	AccountName string

	// Container is the container name used in default blob URLs.
	Container string

	// BaseURL replaces the default URL prefix (e.g. a CDN host).
	BaseURL string

	// DefaultVisibility applies when UploadOptions.Visibility is empty.
	DefaultVisibility string

	// MaxOperationTime bounds each upload, download and large listing.
	// Zero uses DefaultMaxOperationTime; negative disables the limit.
	MaxOperationTime time.Duration

	// Logger receives operation errors. Nil disables logging.
	Logger *zap.Logger
}

// UploadOptions controls a single upload.
type UploadOptions struct {
	// Unique appends a random 8-character suffix to the file name.
	Unique bool

	// ContentType overrides content detection.
	ContentType  string
	CacheControl string
	Metadata     map[string]string

	// Visibility is "public" or "private"; empty uses the configured default.
	Visibility string
}

// BlobInfo describes a listed blob.
type BlobInfo struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type,omitempty"`
}

// Service uploads, downloads and lists blobs through a provider.
//
// The provider must implement provider.ObjectPutter, ObjectGetter and
// ObjectDeleter for the corresponding operations.
type Service struct {
	prov provider.Provider
	cfg  Config
	log  *zap.Logger

	mu      sync.RWMutex
	maxTime time.Duration

	suffix func() string
}

// New creates a service over p.
func New(p provider.Provider, cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxTime := cfg.MaxOperationTime
	if maxTime == 0 {
		maxTime = DefaultMaxOperationTime
	}
	if maxTime < 0 {
		maxTime = 0
	}
	return &Service{
		prov:    p,
		cfg:     cfg,
		log:     log,
		maxTime: maxTime,
		suffix:  randomSuffix,
	}
}

// MaxOperationTime returns the current per-operation time limit.
// Zero means unlimited.
func (s *Service) MaxOperationTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxTime
}

// SetMaxOperationTime changes the per-operation time limit for subsequent
// operations. Zero or negative means unlimited.
func (s *Service) SetMaxOperationTime(d time.Duration) *Service {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	s.maxTime = d
	s.mu.Unlock()
	return s
}

// bounded derives a context that expires after the operation time limit.
func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := s.MaxOperationTime(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// Upload stores r as name and returns the blob URL.
func (s *Service) Upload(ctx context.Context, name string, r io.Reader, opts UploadOptions) (string, error) {
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", fmt.Errorf("upload: blob name is required")
	}
	if opts.Unique {
		name = s.uniqueName(name)
	}

	visibility := opts.Visibility
	if visibility == "" {
		visibility = s.cfg.DefaultVisibility
	}
	switch visibility {
	case "", VisibilityPublic, VisibilityPrivate:
	default:
		return "", fmt.Errorf("upload %s: %w", name, ErrInvalidVisibility)
	}

	putter, ok := s.prov.(provider.ObjectPutter)
	if !ok {
		return "", fmt.Errorf("upload %s: %w", name, provider.ErrUnsupported)
	}

	contentType := opts.ContentType
	if contentType == "" {
		head := make([]byte, 3072)
		n, err := io.ReadFull(r, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("upload %s: %w", name, err)
		}
		contentType = mimetype.Detect(head[:n]).String()
		r = io.MultiReader(bytes.NewReader(head[:n]), r)
	}

	metadata := make(map[string]string, len(opts.Metadata)+1)
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	if visibility != "" {
		metadata[visibilityMetadataKey] = visibility
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	err := putter.PutObject(ctx, name, r, -1, provider.PutOptions{
		ContentType:  contentType,
		CacheControl: opts.CacheControl,
		Metadata:     metadata,
	})
	if err != nil {
		s.log.Error("Blob upload failed", zap.String("blob", name), zap.Error(err))
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return s.URL(name), nil
}

// uniqueName turns "dir/photo.jpg" into "dir/photo_<8 chars>.jpg".
func (s *Service) uniqueName(name string) string {
	dir, file := path.Split(name)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	return dir + base + "_" + s.suffix() + ext
}

// randomSuffix returns 8 lowercase hex characters.
func randomSuffix() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// URL returns the public URL of name.
func (s *Service) URL(name string) string {
	name = strings.TrimLeft(name, "/")
	if s.cfg.BaseURL != "" {
		return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + name
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", s.cfg.AccountName, s.cfg.Container, name)
}

// Delete removes name. Deleting a missing blob succeeds.
func (s *Service) Delete(ctx context.Context, name string) error {
	deleter, ok := s.prov.(provider.ObjectDeleter)
	if !ok {
		return fmt.Errorf("delete %s: %w", name, provider.ErrUnsupported)
	}
	if err := deleter.DeleteObject(ctx, name); err != nil {
		if provider.IsNotFound(err) {
			return nil
		}
		s.log.Error("Blob delete failed", zap.String("blob", name), zap.Error(err))
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name is stored.
func (s *Service) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.prov.Head(ctx, name)
	if err == nil {
		return true, nil
	}
	if provider.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("exists %s: %w", name, err)
}

// ListBlobs returns up to maxResults blobs whose names start with prefix,
// in store order. maxResults <= 0 means 1000.
func (s *Service) ListBlobs(ctx context.Context, prefix string, maxResults int) ([]BlobInfo, error) {
	if maxResults <= 0 {
		maxResults = largeListThreshold
	}
	if maxResults > largeListThreshold {
		var cancel context.CancelFunc
		ctx, cancel = s.bounded(ctx)
		defer cancel()
	}

	var blobs []BlobInfo
	token := ""
	for len(blobs) < maxResults {
		res, err := s.prov.List(ctx, provider.ListOptions{
			Prefix:            prefix,
			Recursive:         true,
			ContinuationToken: token,
			MaxKeys:           maxResults - len(blobs),
		})
		if err != nil {
			s.log.Error("Blob listing failed", zap.String("prefix", prefix), zap.Error(err))
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range res.Objects {
			if len(blobs) == maxResults {
				break
			}
			blobs = append(blobs, BlobInfo{
				Name:         obj.Key,
				URL:          s.URL(obj.Key),
				Size:         obj.Size,
				LastModified: obj.LastModified,
				ContentType:  obj.ContentType,
			})
		}
		if !res.IsTruncated || res.ContinuationToken == "" {
			break
		}
		token = res.ContinuationToken
	}
	return blobs, nil
}

// Download returns the contents of name.
func (s *Service) Download(ctx context.Context, name string) ([]byte, error) {
	getter, ok := s.prov.(provider.ObjectGetter)
	if !ok {
		return nil, fmt.Errorf("download %s: %w", name, provider.ErrUnsupported)
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	body, _, err := getter.GetObject(ctx, name)
	if err != nil {
		s.log.Error("Blob download failed", zap.String("blob", name), zap.Error(err))
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	return data, nil
}
