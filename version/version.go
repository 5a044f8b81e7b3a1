// Package version exposes build-time version information.
package version

// Set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String returns a single-line version description.
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
