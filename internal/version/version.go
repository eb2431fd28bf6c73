// Package version holds build information for callrec.
package version

import "runtime"

// Set at build time:
// go build -ldflags "-X callrec/internal/version.Version=1.2.0 -X callrec/internal/version.Commit=abc1234"
var (
	Version   = "0.1.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the version with a short commit suffix when one is known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns the multi-line banner printed by `callrec version`.
func Full() string {
	return "callrec " + Version + "\n" +
		"commit:  " + Commit + "\n" +
		"built:   " + BuildDate + "\n" +
		"go:      " + runtime.Version()
}
