package foxytools

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Release metadata, overridable with
// -ldflags "-X github.com/weapp/foxytools.GitCommit=...".
var (
	Version   = "0.4.0"
	GitCommit = ""
	BuildDate = ""
)

// BuildInfo describes the running build.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	Modified  bool
}

// ReadBuildInfo returns the injected release metadata. Missing commit and
// date fall back to the VCS stamps the toolchain embeds in binaries.
func ReadBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}
	return info
}

func (b BuildInfo) String() string {
	commit := b.Commit
	if b.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("foxytools v%s (commit %s, built %s, %s)", b.Version, commit, b.BuildDate, b.GoVersion)
}

// GetVersion returns a human-readable version string.
func GetVersion() string {
	return ReadBuildInfo().String()
}
