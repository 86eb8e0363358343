// Package s3 implements the provider interface for AWS S3 and S3-compatible
// storage. It is an alternate backend to Azure Blob for the same listing
// engine and filesystem adapter; the bucket plays the role of the container.
package s3

import (
	"net/url"
)

// Page size limits for ListObjectsV2.
const (
	DefaultMaxKeys = 1000
	MaxAllowedKeys = 1000
)

// DefaultAWSRegion is used for AWS S3 when neither the config, the
// environment nor the profile names a region.
const DefaultAWSRegion = "us-east-1"

// Config configures an S3 provider.
//
// Credentials come from AccessKeyID/SecretAccessKey when both are set,
// otherwise from the SDK default chain (environment, shared files with
// Profile, instance or task roles).
type Config struct {
	Bucket string

	// Region is left to the SDK when empty. Without an Endpoint the
	// provider falls back to DefaultAWSRegion.
	Region string

	// Endpoint selects an S3-compatible store such as MinIO or moto,
	// e.g. http://localhost:9000.
	Endpoint string

	Profile string

	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the URL path. Most S3-compatible
	// stores need it.
	ForcePathStyle bool

	// MaxKeys is the default List page size. Values over MaxAllowedKeys
	// are clamped.
	MaxKeys int
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ConfigError{Field: "Endpoint", Message: "endpoint must be an absolute URL"}
		}
	}
	return nil
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
