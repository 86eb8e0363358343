// Package cloudtest provides helpers for integration tests against local
// storage emulators: Azurite for Azure Blob and moto for S3.
//
// Tests using this package should be tagged with //go:build cloudintegration.
//
// Usage:
//
//	func TestMyAzureFunction(t *testing.T) {
//	    cloudtest.SkipIfAzuriteUnavailable(t)
//	    container := cloudtest.CreateContainer(t, ctx)
//	    cloudtest.PutBlob(t, ctx, container, "key", []byte("content"))
//	    // ... test code ...
//	}
package cloudtest

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// uniqueName derives a lowercase container/bucket name from the test name.
// Both services cap names at 63 characters and reject "_" and "--".
func uniqueName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.NewReplacer("/", "-", "_", "-", " ", "-").Replace(name)
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	if len(name) > 50 {
		name = name[:50]
	}
	name = strings.Trim(name, "-")
	return fmt.Sprintf("%s-%d", name, time.Now().UnixNano()%100000)
}
