// Package version provides version information for sq3.
//
// The version is embedded from version.txt at compile time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed version.txt
var versionFile string

// Version is the current version of sq3.
var Version = strings.TrimSpace(versionFile)

// String returns the version string.
func String() string {
	return Version
}

// Full returns a full version string with the package name.
func Full() string {
	return "sq3 version " + Version
}
