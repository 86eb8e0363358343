// Package file implements the provider interface over a local directory
// tree, or any afero filesystem.
//
// Keys are slash-separated paths relative to BaseDir. Regular files list as
// their relative path; empty directories list as "dir/" marker keys, the
// same shape a blob store uses for explicit directory markers.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/3leaps/blobfs/pkg/provider"
)

// DefaultMaxKeys is the default page size for List operations.
const DefaultMaxKeys = 1000

// Provider implements provider.Provider for local filesystem paths.
type Provider struct {
	fs      afero.Fs
	baseDir string
}

// Ensure Provider implements provider capability interfaces.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.ObjectGetter  = (*Provider)(nil)
	_ provider.ObjectPutter  = (*Provider)(nil)
	_ provider.ObjectDeleter = (*Provider)(nil)
	_ provider.ObjectCopier  = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)

// Config configures a file provider.
type Config struct {
	// BaseDir is the root directory that plays the role of a container.
	BaseDir string

	// Fs is the filesystem to use. Nil means the OS filesystem.
	Fs afero.Fs
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

// New creates a file provider rooted at cfg.BaseDir.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Provider{fs: afero.NewBasePathFs(fsys, base), baseDir: base}, nil
}

// BaseDir returns the cleaned root directory.
func (p *Provider) BaseDir() string { return p.baseDir }

// Close releases any resources held by the provider.
func (p *Provider) Close() error { return nil }

// List returns a page of keys under opts.Prefix in lexicographic order.
// The continuation token is the last key of the previous page.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	prefix := strings.TrimPrefix(opts.Prefix, "/")
	keys, err := p.collectKeys(ctx, prefix)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}
	sort.Strings(keys)

	start := 0
	if opts.ContinuationToken != "" {
		// Start strictly after the last returned key.
		start = sort.Search(len(keys), func(i int) bool { return keys[i] > opts.ContinuationToken })
	}
	end := min(start+maxKeys, len(keys))

	objects := make([]provider.ObjectSummary, 0, end-start)
	for _, k := range keys[start:end] {
		obj, err := p.summary(k)
		if err != nil {
			// Removed between walk and stat.
			continue
		}
		objects = append(objects, obj)
	}

	res := &provider.ListResult{Objects: objects}
	if end < len(keys) {
		res.IsTruncated = true
		res.ContinuationToken = keys[end-1]
	}
	return res, nil
}

// Head returns metadata for a file, or for an empty-directory marker when
// key ends in "/".
func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	_ = ctx
	name, err := cleanKey(key)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	st, err := p.fs.Stat(name)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	if st.IsDir() != strings.HasSuffix(key, "/") {
		return nil, p.wrapError("Head", key, provider.ErrNotFound)
	}

	obj, err := p.summary(strings.TrimPrefix(key, "/"))
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	return &provider.ObjectMeta{ObjectSummary: obj}, nil
}

// GetObject opens a file for reading. The caller closes the body.
func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	_ = ctx
	name, err := cleanKey(key)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	f, err := p.fs.Open(name)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", key, provider.ErrNotFound)
	}
	return f, st.Size(), nil
}

// PutObject writes body to key through a temp file and rename.
//
// A key ending in "/" creates the directory and ignores body. Content type,
// cache control and metadata are not persisted; content type is detected
// on read.
func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64, opts provider.PutOptions) error {
	_, _, _ = ctx, contentLength, opts
	name, err := cleanKey(key)
	if err != nil {
		return p.wrapError("PutObject", key, err)
	}
	if strings.HasSuffix(key, "/") {
		if err := p.fs.MkdirAll(name, 0o755); err != nil {
			return p.wrapError("PutObject", key, err)
		}
		return nil
	}

	dir := path.Dir(name)
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return p.wrapError("PutObject", key, err)
	}

	tmp, err := afero.TempFile(p.fs, dir, ".blobfs-put-*")
	if err != nil {
		return p.wrapError("PutObject", key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = p.fs.Remove(tmpName)
	}()

	if body != nil {
		if _, err := io.Copy(tmp, body); err != nil {
			return p.wrapError("PutObject", key, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	if err := p.fs.Rename(tmpName, name); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	return nil
}

// DeleteObject removes a file, or an empty-directory marker.
//
// Deleting a marker whose directory still holds files is a no-op: such a
// directory is implied by its files and never listed as a marker.
func (p *Provider) DeleteObject(ctx context.Context, key string) error {
	_ = ctx
	name, err := cleanKey(key)
	if err != nil {
		return p.wrapError("DeleteObject", key, err)
	}
	st, err := p.fs.Stat(name)
	if err != nil {
		return p.wrapError("DeleteObject", key, err)
	}

	if !st.IsDir() {
		if strings.HasSuffix(key, "/") {
			return p.wrapError("DeleteObject", key, provider.ErrNotFound)
		}
		if err := p.fs.Remove(name); err != nil {
			return p.wrapError("DeleteObject", key, err)
		}
		return nil
	}

	if !strings.HasSuffix(key, "/") || name == "/" {
		return p.wrapError("DeleteObject", key, provider.ErrNotFound)
	}
	hasFiles, err := p.containsFiles(name)
	if err != nil {
		return p.wrapError("DeleteObject", key, err)
	}
	if hasFiles {
		return nil
	}
	if err := p.fs.RemoveAll(name); err != nil {
		return p.wrapError("DeleteObject", key, err)
	}
	return nil
}

// CopyObject copies a file within the base directory.
func (p *Provider) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	body, size, err := p.GetObject(ctx, srcKey)
	if err != nil {
		return p.wrapError("CopyObject", srcKey, err)
	}
	defer func() { _ = body.Close() }()

	if err := p.PutObject(ctx, dstKey, body, size, provider.PutOptions{}); err != nil {
		return p.wrapError("CopyObject", dstKey, err)
	}
	return nil
}

// CheckHealth verifies the base directory exists.
func (p *Provider) CheckHealth(ctx context.Context) error {
	_ = ctx
	st, err := p.fs.Stat("/")
	if err != nil {
		return p.wrapError("CheckHealth", "", err)
	}
	if !st.IsDir() {
		return p.wrapError("CheckHealth", "", provider.ErrContainerNotFound)
	}
	return nil
}

// summary builds the listing entry for a key produced by collectKeys.
func (p *Provider) summary(key string) (provider.ObjectSummary, error) {
	name := "/" + strings.TrimSuffix(key, "/")
	st, err := p.fs.Stat(name)
	if err != nil {
		return provider.ObjectSummary{}, err
	}

	obj := provider.ObjectSummary{Key: key, LastModified: st.ModTime()}
	if st.IsDir() {
		return obj, nil
	}
	obj.Size = st.Size()
	obj.ContentType = p.detectContentType(name)
	return obj, nil
}

// detectContentType sniffs the file header. Unreadable files report
// an empty content type.
func (p *Provider) detectContentType(name string) string {
	f, err := p.fs.Open(name)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return ""
	}
	return mt.String()
}

// collectKeys walks the smallest directory that can contain prefix and
// returns every file key and empty-directory marker starting with prefix.
func (p *Provider) collectKeys(ctx context.Context, prefix string) ([]string, error) {
	root := "/"
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		var err error
		if root, err = cleanKey(prefix[:i]); err != nil {
			return nil, err
		}
	}

	if _, err := p.fs.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	var keys []string
	err := afero.Walk(p.fs, root, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		key := strings.TrimPrefix(filepath.ToSlash(name), "/")
		if info.IsDir() {
			if key == "" {
				return nil
			}
			if empty, _ := afero.IsEmpty(p.fs, name); !empty {
				return nil
			}
			key += "/"
		} else if strings.HasPrefix(info.Name(), ".blobfs-put-") {
			return nil
		}

		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

var errFileFound = errors.New("file found")

// containsFiles reports whether any regular file exists below dir.
func (p *Provider) containsFiles(dir string) (bool, error) {
	err := afero.Walk(p.fs, dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return errFileFound
		}
		return nil
	})
	if errors.Is(err, errFileFound) {
		return true, nil
	}
	return false, err
}

// cleanKey maps a key to an absolute path inside the base filesystem and
// rejects traversal outside it.
func cleanKey(key string) (string, error) {
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", fmt.Errorf("invalid key path %q", key)
		}
	}
	return path.Clean("/" + key), nil
}

func (p *Provider) wrapError(op, key string, err error) error {
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	wrapped := &provider.ProviderError{
		Op:        op,
		Provider:  provider.ProviderFile,
		Container: p.baseDir,
		Key:       key,
		Err:       err,
	}
	switch {
	case errors.Is(err, provider.ErrNotFound), errors.Is(err, provider.ErrContainerNotFound):
	case errors.Is(err, os.ErrNotExist):
		wrapped.Err = provider.ErrNotFound
		wrapped.Cause = err
	case errors.Is(err, os.ErrPermission):
		wrapped.Err = provider.ErrAccessDenied
		wrapped.Cause = err
	}
	return wrapped
}
