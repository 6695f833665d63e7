// Package version carries build metadata for the switchyard binaries.
package version

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/switchyard-net/switchyard/pkg/version.Version=v1.0.0 \
//	  -X github.com/switchyard-net/switchyard/pkg/version.GitCommit=abc1234 \
//	  -X github.com/switchyard-net/switchyard/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns the full version string for --version output.
func Info() string {
	return Version + " (" + GitCommit + ") built " + BuildDate
}

// Short returns just the version tag, for log fields.
func Short() string {
	return Version
}
