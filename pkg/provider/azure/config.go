// Package azure implements the provider interface for Azure Blob Storage
// and Azure-compatible endpoints such as Azurite.
package azure

import (
	"fmt"
	"strings"
)

// AuthMode selects how the client authenticates.
type AuthMode string

const (
	// AuthKey uses the storage account shared key.
	AuthKey AuthMode = "key"

	// AuthSAS uses a shared access signature token.
	AuthSAS AuthMode = "sas"

	// AuthIdentity uses the Azure AD default credential chain
	// (environment, workload identity, managed identity, Azure CLI).
	AuthIdentity AuthMode = "identity"
)

// Config configures an Azure Blob provider.
//
// Authentication priority when AuthMode is empty:
//  1. ConnectionString, used verbatim
//  2. SASToken
//  3. AccountKey
//
// For Azurite or sovereign clouds set Endpoint to the blob service URL
// (e.g. http://127.0.0.1:10000/devstoreaccount1).
type Config struct {
	// AccountName is the storage account name (required unless
	// ConnectionString is set).
	AccountName string

	// AccountKey is the shared key for AuthKey.
	AccountKey string

	// SASToken is the shared access signature for AuthSAS.
	// A leading "?" is accepted and stripped.
	SASToken string

	// ConnectionString overrides AccountName/AccountKey/SASToken/Endpoint.
	ConnectionString string

	// Endpoint is a custom blob service URL.
	Endpoint string

	// Container is the blob container name (required).
	Container string

	// AuthMode selects the credential type. Empty infers from the fields.
	AuthMode AuthMode

	// MaxKeys is the default page size for List operations.
	// Zero uses the provider default (1000). Values over 5000 are clamped.
	MaxKeys int
}

// DefaultMaxKeys is the default page size for List operations.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by the Blob service.
const MaxAllowedKeys = 5000

// ResolvedAuthMode returns the effective authentication mode.
func (c *Config) ResolvedAuthMode() AuthMode {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.SASToken != "" {
		return AuthSAS
	}
	return AuthKey
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Container == "" {
		return &ConfigError{Field: "Container", Message: "container name is required"}
	}
	if c.ConnectionString != "" {
		return nil
	}
	if c.AccountName == "" {
		return &ConfigError{Field: "AccountName", Message: "account name is required"}
	}

	switch c.ResolvedAuthMode() {
	case AuthKey:
		if c.AccountKey == "" {
			return &ConfigError{Field: "AccountKey", Message: "account key or SAS token is required"}
		}
	case AuthSAS:
		if strings.TrimPrefix(c.SASToken, "?") == "" {
			return &ConfigError{Field: "SASToken", Message: "SAS token is required for sas auth mode"}
		}
	case AuthIdentity:
	default:
		return &ConfigError{Field: "AuthMode", Message: fmt.Sprintf("unknown auth mode %q (expected key, sas or identity)", c.AuthMode)}
	}
	return nil
}

// ConnectionStringValue returns the connection string used to build a
// key- or SAS-authenticated client.
//
// An explicit ConnectionString wins. Otherwise the string is assembled as
//
//	DefaultEndpointsProtocol=https;AccountName=<name>;
//	SharedAccessSignature=<sas>;   (sas mode)  or  AccountKey=<key>;
//	BlobEndpoint=<endpoint>;       (only when Endpoint is set)
func (c *Config) ConnectionStringValue() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}

	var b strings.Builder
	b.WriteString("DefaultEndpointsProtocol=https;")
	b.WriteString("AccountName=" + c.AccountName + ";")

	if c.ResolvedAuthMode() == AuthSAS {
		b.WriteString("SharedAccessSignature=" + strings.TrimPrefix(c.SASToken, "?") + ";")
	} else if c.AccountKey != "" {
		b.WriteString("AccountKey=" + c.AccountKey + ";")
	}

	if c.Endpoint != "" {
		b.WriteString("BlobEndpoint=" + c.Endpoint + ";")
	}
	return b.String()
}

// ServiceURL returns the blob service URL with a trailing slash.
func (c *Config) ServiceURL() string {
	if c.Endpoint != "" {
		return strings.TrimRight(c.Endpoint, "/") + "/"
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.AccountName)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "azure config: " + e.Field + ": " + e.Message
}
