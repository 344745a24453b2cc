// Package version carries build metadata set with -ldflags. Version is
// also stamped on every stored analysis run.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for -version output.
func String() string {
	return fmt.Sprintf("circuit %s (%s, built %s)", Version, GitSHA, BuildTime)
}
