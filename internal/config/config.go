// Package config loads blobfs settings from defaults, an optional YAML
// file, environment variables and runtime overrides, in increasing order of
// precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every blobfs environment variable.
	EnvPrefix = "BLOBFS"

	// FileName is the config file name looked up in the search paths.
	FileName = "blobfs.yaml"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Storage StorageConfig `mapstructure:"storage"`
	Listing ListingConfig `mapstructure:"listing"`
	Blob    BlobConfig    `mapstructure:"blob"`
}

// ServerConfig configures the HTTP server started by "blobfs serve".
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// Format is "console" or "json".
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Provider is "azblob", "s3" or "file".
	Provider string      `mapstructure:"provider"`
	Azure    AzureConfig `mapstructure:"azure"`
	S3       S3Config    `mapstructure:"s3"`
	File     FileConfig  `mapstructure:"file"`
}

type AzureConfig struct {
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	SASToken         string `mapstructure:"sas_token"`
	ConnectionString string `mapstructure:"connection_string"`
	Container        string `mapstructure:"container"`
	Endpoint         string `mapstructure:"endpoint"`
	AuthMode         string `mapstructure:"auth_mode"`
}

type S3Config struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

type FileConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// ListingConfig tunes the listing engine.
type ListingConfig struct {
	PageSize  int     `mapstructure:"page_size"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

// BlobConfig configures the upload/download service.
type BlobConfig struct {
	// URL replaces the default public URL prefix.
	URL               string        `mapstructure:"url"`
	DefaultVisibility string        `mapstructure:"default_visibility"`
	MaxUploadTime     time.Duration `mapstructure:"max_upload_time"`
}

// EnvSpec maps an environment variable to a config key.
type EnvSpec struct {
	Name string
	Path string
}

var (
	configMu   sync.RWMutex
	appConfig  *Config
	configFile string
)

// SetConfigFile pins the config file used by Load. Empty restores the
// search paths.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// Load builds the configuration and makes it the current one.
//
// Overrides are nested maps keyed like the YAML file; later maps win.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", explicit, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		for _, p := range getUserConfigPaths() {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		for key, value := range flatten("", o) {
			v.Set(key, value)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("health.enabled", true)

	v.SetDefault("storage.provider", "azblob")
	v.SetDefault("storage.azure.account_name", "")
	v.SetDefault("storage.azure.account_key", "")
	v.SetDefault("storage.azure.sas_token", "")
	v.SetDefault("storage.azure.connection_string", "")
	v.SetDefault("storage.azure.container", "")
	v.SetDefault("storage.azure.endpoint", "")
	v.SetDefault("storage.azure.auth_mode", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.profile", "")
	v.SetDefault("storage.s3.force_path_style", false)
	v.SetDefault("storage.file.base_dir", "")

	v.SetDefault("listing.page_size", 1000)
	v.SetDefault("listing.rate_limit", 0)

	v.SetDefault("blob.url", "")
	v.SetDefault("blob.default_visibility", "private")
	v.SetDefault("blob.max_upload_time", "600s")
}

// getEnvSpecs lists every supported environment variable. Several names
// may feed the same key; the first one set wins.
func getEnvSpecs() []EnvSpec {
	prefixed := []struct{ suffix, path string }{
		{"HOST", "server.host"},
		{"PORT", "server.port"},
		{"READ_TIMEOUT", "server.read_timeout"},
		{"WRITE_TIMEOUT", "server.write_timeout"},
		{"IDLE_TIMEOUT", "server.idle_timeout"},
		{"SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{"LOG_LEVEL", "logging.level"},
		{"LOG_FORMAT", "logging.format"},
		{"METRICS_ENABLED", "metrics.enabled"},
		{"METRICS_PATH", "metrics.path"},
		{"HEALTH_ENABLED", "health.enabled"},
		{"PROVIDER", "storage.provider"},
		{"AZURE_ACCOUNT_NAME", "storage.azure.account_name"},
		{"AZURE_ACCOUNT_KEY", "storage.azure.account_key"},
		{"AZURE_SAS_TOKEN", "storage.azure.sas_token"},
		{"AZURE_CONNECTION_STRING", "storage.azure.connection_string"},
		{"AZURE_CONTAINER", "storage.azure.container"},
		{"AZURE_ENDPOINT", "storage.azure.endpoint"},
		{"AZURE_AUTH_MODE", "storage.azure.auth_mode"},
		{"S3_BUCKET", "storage.s3.bucket"},
		{"S3_REGION", "storage.s3.region"},
		{"S3_ENDPOINT", "storage.s3.endpoint"},
		{"S3_PROFILE", "storage.s3.profile"},
		{"S3_FORCE_PATH_STYLE", "storage.s3.force_path_style"},
		{"FILE_BASE_DIR", "storage.file.base_dir"},
		{"LIST_PAGE_SIZE", "listing.page_size"},
		{"LIST_RATE_LIMIT", "listing.rate_limit"},
		{"BLOB_URL", "blob.url"},
		{"DEFAULT_VISIBILITY", "blob.default_visibility"},
		{"MAX_UPLOAD_TIME", "blob.max_upload_time"},
	}
	specs := make([]EnvSpec, 0, len(prefixed)+len(azureStorageEnv))
	for _, p := range prefixed {
		specs = append(specs, EnvSpec{Name: EnvPrefix + "_" + p.suffix, Path: p.path})
	}
	return append(specs, azureStorageEnv...)
}

// azureStorageEnv are the conventional AZURE_STORAGE_* names, consulted
// after their BLOBFS_ equivalents.
var azureStorageEnv = []EnvSpec{
	{Name: "AZURE_STORAGE_ACCOUNT_NAME", Path: "storage.azure.account_name"},
	{Name: "AZURE_STORAGE_ACCOUNT_KEY", Path: "storage.azure.account_key"},
	{Name: "AZURE_STORAGE_SAS_TOKEN", Path: "storage.azure.sas_token"},
	{Name: "AZURE_STORAGE_CONNECTION_STRING", Path: "storage.azure.connection_string"},
	{Name: "AZURE_STORAGE_CONTAINER", Path: "storage.azure.container"},
	{Name: "AZURE_STORAGE_ENDPOINT", Path: "storage.azure.endpoint"},
	{Name: "AZURE_STORAGE_AUTH_MODE", Path: "storage.azure.auth_mode"},
	{Name: "AZURE_STORAGE_URL", Path: "blob.url"},
	{Name: "AZURE_STORAGE_DEFAULT_VISIBILITY", Path: "blob.default_visibility"},
	{Name: "AZURE_STORAGE_MAX_UPLOAD_TIME", Path: "blob.max_upload_time"},
}

func bindEnv(v *viper.Viper) error {
	names := make(map[string][]string)
	var order []string
	for _, spec := range getEnvSpecs() {
		if _, ok := names[spec.Path]; !ok {
			order = append(order, spec.Path)
		}
		names[spec.Path] = append(names[spec.Path], spec.Name)
	}
	for _, path := range order {
		args := append([]string{path}, names[path]...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", path, err)
		}
	}
	return nil
}

// getUserConfigPaths returns the directories searched for FileName.
func getUserConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "blobfs"))
	}
	return paths
}

// DefaultPath is where "blobfs config init" writes the config file.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "blobfs", FileName), nil
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// secondsToDurationHook reads bare numbers as seconds, so
// AZURE_STORAGE_MAX_UPLOAD_TIME=600 means ten minutes.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			s := strings.TrimSpace(data.(string))
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return time.Duration(n * float64(time.Second)), nil
			}
			return data, nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
		}
		return data, nil
	}
}
