// Package version exposes build metadata, overridden via ldflags.
package version

var (
	Version = "dev"
	Commit  = "unknown"
)

func GetInfo() string {
	return Version + " (" + Commit + ")"
}
