// Package version carries build metadata stamped in through -ldflags.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time with -ldflags "-X github.com/Sumatoshi-tech/testfang/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

const shortCommitLen = 7

func init() {
	InitBinaryVersion()
}

// InitBinaryVersion fills unset fields from the module build info, so
// binaries installed with go install still report something useful.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "unknown" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}

// ShortCommit returns the abbreviated commit hash.
func ShortCommit() string {
	if len(Commit) > shortCommitLen {
		return Commit[:shortCommitLen]
	}

	return Commit
}

// String renders the one-line version banner.
func String() string {
	return fmt.Sprintf("testfang %s (commit: %s, built: %s)", Version, ShortCommit(), Date)
}
