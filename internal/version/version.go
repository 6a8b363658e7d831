// Package version holds the build version stamp.
package version

// Version is the uplink release version. Overridden at build time via
// -ldflags "-X github.com/r2labs/uplink/internal/version.Version=...".
var Version = "0.3.0-dev"
