// Package version provides version information for backchannel.
// The Version variable is set at build time via ldflags.
package version

import "runtime/debug"

// Version is the current version of backchannel.
// Set at build time via: -ldflags "-X github.com/xdg/backchannel/internal/version.Version=v1.0.0"
// Defaults to "dev" for development builds.
var Version = "dev"

// String returns Version, falling back to the module version recorded by
// "go install" when Version was not set at build time.
func String() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
