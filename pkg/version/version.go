// Package version carries build information for openswe.
// Values are injected with -ldflags "-X openswe/pkg/version.Version=v1.2.3".
package version

import "fmt"

//nolint:gochecknoglobals // ldflags injection targets
var (
	Version = "1.0.0"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build information on one line.
func String() string {
	return fmt.Sprintf("openswe %s (commit %s, built %s)", Version, Commit, Date)
}
