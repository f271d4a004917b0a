package versionutil

import "strings"

// BuildVersion is overridable at link time via -ldflags
// "-X github.com/koltyakov/tunnelpool/internal/versionutil.BuildVersion=1.2.3".
// It is the single source of version info for both the "version" CLI
// subcommand and the User-Agent header transports send on dial.
var BuildVersion = "dev"

// EnsureVPrefix returns s with a leading "v" if it doesn't already have one.
func EnsureVPrefix(s string) string {
	if s != "" && !strings.HasPrefix(s, "v") {
		return "v" + s
	}
	return s
}

// UserAgent returns the value transports should send as their User-Agent
// when dialing: "tunnelpool/<version>".
func UserAgent() string {
	return "tunnelpool/" + EnsureVPrefix(BuildVersion)
}
