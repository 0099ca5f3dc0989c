// Package version carries build metadata. The values are replaced at link
// time, for example:
//
//	go build -ldflags "-X github.com/MeKo-Tech/qrharvest/internal/version.Version=v1.2.0"
package version

import "fmt"

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String formats the build metadata for --version output.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}
