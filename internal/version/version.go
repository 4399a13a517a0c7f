// Package version provides build-time metadata for the CLI application.
//
// All variables can be overridden at build time using -ldflags:
//
//	go build -ldflags "\
//	  -X 'github.com/bilal/netvelocimeter/internal/version.Version=1.0.0' \
//	  -X 'github.com/bilal/netvelocimeter/internal/version.GitCommit=$(git rev-parse HEAD)'"
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	// Version is the current version of the application
	Version = "0.0.0"

	// BuildDate is the date the application was built
	BuildDate = "1970-01-01T00:00:00Z"

	// GitCommit is the commit hash the application was built from
	GitCommit = ""

	// GoVersion is the version of Go used to build the application
	GoVersion = runtime.Version()
)

// String returns Version, or the module version from the build info when
// Version was not set at build time.
func String() string {
	if Version == "0.0.0" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return Version
}
