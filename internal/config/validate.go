package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Validate checks the settings the selected storage provider needs.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be console or json", c.Logging.Format))
	}
	if c.Listing.PageSize < 0 {
		errs = append(errs, errors.New("listing.page_size must not be negative"))
	}
	if c.Listing.RateLimit < 0 {
		errs = append(errs, errors.New("listing.rate_limit must not be negative"))
	}
	switch c.Blob.DefaultVisibility {
	case "", "public", "private":
	default:
		errs = append(errs, fmt.Errorf("blob.default_visibility %q must be public or private", c.Blob.DefaultVisibility))
	}

	switch c.Storage.Provider {
	case "azblob":
		az := c.Storage.Azure
		if az.ConnectionString == "" && az.AccountName == "" {
			errs = append(errs, errors.New("storage.azure.account_name is required"))
		}
		if az.Container == "" {
			errs = append(errs, errors.New("storage.azure.container is required"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required"))
		}
	case "file":
		if c.Storage.File.BaseDir == "" {
			errs = append(errs, errors.New("storage.file.base_dir is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.provider %q must be azblob, s3 or file", c.Storage.Provider))
	}

	return errors.Join(errs...)
}

// Save writes cfg to path as YAML that Load reads back unchanged.
// Secrets are written too, so the file is created owner-only.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg.settings())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// settings is cfg keyed like the config file, durations as strings.
func (c *Config) settings() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":             c.Server.Host,
			"port":             c.Server.Port,
			"read_timeout":     c.Server.ReadTimeout.String(),
			"write_timeout":    c.Server.WriteTimeout.String(),
			"idle_timeout":     c.Server.IdleTimeout.String(),
			"shutdown_timeout": c.Server.ShutdownTimeout.String(),
		},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
		},
		"metrics": map[string]any{
			"enabled": c.Metrics.Enabled,
			"path":    c.Metrics.Path,
		},
		"health": map[string]any{
			"enabled": c.Health.Enabled,
		},
		"storage": map[string]any{
			"provider": c.Storage.Provider,
			"azure": map[string]any{
				"account_name":      c.Storage.Azure.AccountName,
				"account_key":       c.Storage.Azure.AccountKey,
				"sas_token":         c.Storage.Azure.SASToken,
				"connection_string": c.Storage.Azure.ConnectionString,
				"container":         c.Storage.Azure.Container,
				"endpoint":          c.Storage.Azure.Endpoint,
				"auth_mode":         c.Storage.Azure.AuthMode,
			},
			"s3": map[string]any{
				"bucket":           c.Storage.S3.Bucket,
				"region":           c.Storage.S3.Region,
				"endpoint":         c.Storage.S3.Endpoint,
				"profile":          c.Storage.S3.Profile,
				"force_path_style": c.Storage.S3.ForcePathStyle,
			},
			"file": map[string]any{
				"base_dir": c.Storage.File.BaseDir,
			},
		},
		"listing": map[string]any{
			"page_size":  c.Listing.PageSize,
			"rate_limit": c.Listing.RateLimit,
		},
		"blob": map[string]any{
			"url":                c.Blob.URL,
			"default_visibility": c.Blob.DefaultVisibility,
			"max_upload_time":    c.Blob.MaxUploadTime.String(),
		},
	}
}
