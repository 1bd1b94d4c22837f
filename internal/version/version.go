// Package version holds build metadata stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Build metadata, set with -ldflags "-X github.com/mrz1836/quorum/internal/version.version=...".
//
//nolint:gochecknoglobals // Linker-stamped values
var (
	version = ""
	commit  = ""
	date    = ""
)

// Info describes a build.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

// Current returns the running binary's build info.
func Current() Info {
	return New(version, commit, date)
}

// New fills in placeholders for missing fields.
func New(v, c, d string) Info {
	info := Info{
		Version: Normalize(v),
		Commit:  strings.TrimSpace(c),
		Date:    strings.TrimSpace(d),
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
	if info.Version == "" || IsCommitHash(info.Version) {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return info
}

// String formats the info on one line.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", i.Version, i.Commit, i.Date)
}

// UserAgent is the identifier sent to relayers.
func (i Info) UserAgent() string {
	return fmt.Sprintf("quorum/%s (%s/%s)", i.Version, i.OS, i.Arch)
}

// Normalize trims whitespace and a leading "v" and drops any pre-release or
// build suffix, so "v1.2.3-rc1" becomes "1.2.3".
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	if idx := strings.IndexAny(v, "-+"); idx != -1 {
		v = v[:idx]
	}
	return strings.TrimLeft(v, "v")
}

// IsCommitHash reports whether s looks like an abbreviated or full git hash
// rather than a release number: 7 to 40 hex digits with at least one letter.
func IsCommitHash(s string) bool {
	if len(s) < 7 || len(s) > 40 {
		return false
	}

	hasLetter := false
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
			hasLetter = true
		default:
			return false
		}
	}
	return hasLetter
}
