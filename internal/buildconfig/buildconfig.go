package buildconfig

import "fmt"

// Build-time variables injected via ldflags:
//
//	-X github.com/Harshitk-cp/smartsearch/internal/buildconfig.version=v1.2.0
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Version returns the build version
func Version() string {
	return version
}

// Commit returns the git commit hash
func Commit() string {
	return commit
}

func BuildTime() string {
	return buildTime
}

// UserAgent is sent on every outbound backend request.
func UserAgent() string {
	return fmt.Sprintf("smartsearch/%s (+%s)", version, commit)
}

// VersionInfo returns full version information
func VersionInfo() map[string]string {
	return map[string]string{
		"version":    version,
		"commit":     commit,
		"build_time": buildTime,
	}
}
