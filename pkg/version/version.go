// Package version records the catalogd build stamp passed in by main.
package version

import "fmt"

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Info is the build stamp as printed by `catalogd version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// String renders the stamp on one line, e.g. "1.2.0 (abc123, 2026-01-01)".
func (i Info) String() string {
	return fmt.Sprintf("%s (%s, %s)", i.Version, i.Commit, i.BuildDate)
}

// Set replaces the stamp. Empty values keep the previous value so that a
// binary built without ldflags still reports "dev".
func Set(v, c, d string) {
	if v != "" {
		version = v
	}
	if c != "" {
		commit = c
	}
	if d != "" {
		buildDate = d
	}
}

// Get returns the current stamp.
func Get() Info {
	return Info{Version: version, Commit: commit, BuildDate: buildDate}
}
