// Package version identifies the running binary.
package version

import (
	"runtime/debug"
)

// Version is the version of the built binary
type Version string

// Unknown is the Version of binaries built without module or VCS information.
const Unknown Version = "unknown"

// IsCurrent returns whether Version is the same as the current binary.
func (v Version) IsCurrent() bool {
	return v == GetVersion()
}

// GetVersion returns the Version for the current binary: its VCS revision, else its module
// version.
func GetVersion() Version {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return Unknown
	}
	for _, buildSetting := range buildInfo.Settings {
		if buildSetting.Key == "vcs.revision" {
			return Version(buildSetting.Value)
		}
	}
	if buildInfo.Main.Version != "" {
		return Version(buildInfo.Main.Version)
	}
	return Unknown
}
