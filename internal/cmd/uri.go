package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/3leaps/blobfs/internal/config"
	"github.com/3leaps/blobfs/pkg/provider"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingContainer indicates the URI has no container or bucket.
	ErrMissingContainer = errors.New("missing container name")
)

// ObjectURI addresses a path inside a specific container.
//
// Example URIs:
//   - az://media/img/logo.png
//   - s3://bucket/prefix/
type ObjectURI struct {
	// Provider is the provider type ("azblob" or "s3").
	Provider string

	// Container is the Azure container or S3 bucket.
	Container string

	// Key is the path inside the container. Empty for the root.
	Key string
}

var uriSchemes = map[string]provider.ProviderType{
	"az":     provider.ProviderAzureBlob,
	"azblob": provider.ProviderAzureBlob,
	"s3":     provider.ProviderS3,
}

// String returns the URI in canonical form.
func (u *ObjectURI) String() string {
	scheme := "az"
	if u.Provider == string(provider.ProviderS3) {
		scheme = "s3"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, u.Container, u.Key)
}

// IsPrefix reports whether the URI names a directory.
func (u *ObjectURI) IsPrefix() bool {
	return u.Key == "" || strings.HasSuffix(u.Key, "/")
}

// HasScheme reports whether arg looks like a URI rather than a plain path.
func HasScheme(arg string) bool {
	return strings.Contains(arg, "://")
}

// ParseURI parses az://container/key or s3://bucket/key.
//
// The key is passed through unchanged apart from leading slashes; path
// normalization happens in the adapter.
func ParseURI(uri string) (*ObjectURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return nil, fmt.Errorf("%w: missing scheme (expected az:// or s3://)", ErrInvalidURI)
	}
	scheme := strings.ToLower(uri[:schemeEnd])
	pt, ok := uriSchemes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s (supported: az, s3)", ErrUnsupportedProvider, scheme)
	}

	container, key, _ := strings.Cut(uri[schemeEnd+3:], "/")
	if container == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingContainer, uri)
	}
	if strings.ContainsAny(container, "?#\\ ") {
		return nil, fmt.Errorf("%w: invalid container name %q", ErrInvalidURI, container)
	}

	return &ObjectURI{
		Provider:  string(pt),
		Container: container,
		Key:       strings.TrimLeft(key, "/"),
	}, nil
}

// Apply returns a copy of cfg that targets the URI's provider and
// container. Credentials and endpoints are kept from cfg.
func (u *ObjectURI) Apply(cfg *config.Config) *config.Config {
	out := *cfg
	out.Storage.Provider = u.Provider
	switch provider.ProviderType(u.Provider) {
	case provider.ProviderAzureBlob:
		out.Storage.Azure.Container = u.Container
	case provider.ProviderS3:
		out.Storage.S3.Bucket = u.Container
	}
	return &out
}
