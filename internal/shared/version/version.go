// Package version carries the build identity stamped in by the linker.
package version

import (
	"runtime"
	"strings"

	"golang.org/x/mod/semver"
)

// Set with -ldflags "-X github.com/orris-inc/cellcore/internal/shared/version.Version=v1.2.3".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = ""
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Release   bool   `json:"release"`
}

// Get returns the build identity.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Release:   IsRelease(Version),
	}
}

// Normalize ensures version string has "v" prefix for semver compatibility.
// Examples: "1.2.3" -> "v1.2.3", "v1.2.3" -> "v1.2.3"
func Normalize(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		return "v" + version
	}
	return version
}

// IsRelease reports whether version is a valid semver without a prerelease suffix.
func IsRelease(version string) bool {
	v := Normalize(version)
	return semver.IsValid(v) && semver.Prerelease(v) == ""
}

// String renders the identity on one line.
func (i Info) String() string {
	v := Normalize(i.Version)
	if i.Version == "" || i.Version == "dev" {
		v = "dev"
	}

	var b strings.Builder
	b.WriteString(v + " (" + i.Commit)
	if i.BuildDate != "" {
		b.WriteString(", " + i.BuildDate)
	}
	b.WriteString(", " + i.GoVersion + ")")
	return b.String()
}
