// Package version holds build-time version information for the docqa binary.
// The variables are populated via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/docqa-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/docqa-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/docqa-go/internal/version.BuildDate=2026-01-01"
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version of the binary. "dev" for local builds.
	Version = "dev"
	// Commit is the short git SHA the binary was built from.
	Commit = "unknown"
	// BuildDate is the UTC build date.
	BuildDate = "unknown"
)

// String renders the version line printed by `docqa version` and the
// User-Agent suffix used for outbound requests.
func String() string {
	return fmt.Sprintf("docqa %s (commit %s, built %s, %s)", Version, Commit, BuildDate, runtime.Version())
}
