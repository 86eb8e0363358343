package main

import (
	"context"
	"fmt"
	"os"

	"github.com/3leaps/blobfs/internal/cmd"
	"github.com/3leaps/blobfs/internal/observability"
)

// Set by the linker.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)

	err := cmd.Execute(context.Background())
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
