// Package buildinfo reports nutver's own build version from Go build
// metadata. This is the version of the nutver tool itself, not of the
// project whose tree nutver inspects.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version string for the current build.
//
// For tagged releases (via go install), returns the module version
// (e.g., "v0.2.0"). For development builds, returns a pseudo-version
// built from VCS info: "dev-<hash>" for clean builds,
// "dev-<hash>-dirty" with uncommitted changes, "dev" when no VCS info
// is recorded, and "unknown" if build info cannot be read at all.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return devVersion(info)
}

func devVersion(info *debug.BuildInfo) string {
	var revision string
	var modified bool

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}

	if revision == "" {
		return "dev"
	}

	// 12 characters matches the usual short git hash length
	if len(revision) > 12 {
		revision = revision[:12]
	}

	version := fmt.Sprintf("dev-%s", revision)
	if modified {
		version += "-dirty"
	}

	return version
}
