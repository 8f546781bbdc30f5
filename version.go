// Package lode provides the version information for lode.
package lode

// Version is the current version of lode.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
