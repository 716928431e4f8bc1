// Package version holds build-time version information for the roomrag binary.
// The variables in this package are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/roomrag-go/internal/version.Version=v1.2.3 \
//	                    -X github.com/54b3r/roomrag-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/roomrag-go/internal/version.BuildDate=2026-01-01"
//
// When built without ldflags (e.g. `go run`), the values fall back to
// human-readable defaults so the binary is always usable.
package version

import "fmt"

// Version is the semantic version of the binary (e.g. "v1.2.3").
var Version = "dev"

// Commit is the short git SHA of the commit the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC date the binary was built (RFC3339 format).
var BuildDate = "unknown"

// String returns the one-line version banner printed by `roomrag version`
// and served by GET /api/health.
func String() string {
	return fmt.Sprintf("roomrag %s (commit %s, built %s)", Version, Commit, BuildDate)
}
