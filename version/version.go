// Package version describes the forkdb build: its release, the commit it was built from, the execution engine it links
// and the snapshot format it writes.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/crytic/forkdb/chain/state/snapshot"
)

// engineModule is the module path of the execution engine whose version is reported.
const engineModule = "github.com/crytic/medusa-geth"

// Release values, which may be set via ldflags. Values left empty are read from the VCS stamp of the binary.
var (
	Version       = "0.3.0"
	GitCommit     = ""
	GitCommitTime = ""
	GitTreeDirty  = ""
)

// Info describes one build of forkdb.
type Info struct {
	Version    string
	Commit     string
	CommitTime time.Time
	Dirty      bool
	GoVersion  string

	// EngineVersion is the version of the execution engine module, empty when unknown.
	EngineVersion string
	// SnapshotFormat is the snapshot format version this build writes.
	SnapshotFormat string
}

// GetInfo returns the information of the running binary.
func GetInfo() Info {
	build, _ := debug.ReadBuildInfo()
	return newInfo(build)
}

// newInfo combines the release values with build, which may be nil.
func newInfo(build *debug.BuildInfo) Info {
	info := Info{
		Version:        Version,
		Commit:         GitCommit,
		Dirty:          GitTreeDirty == "true",
		GoVersion:      runtime.Version(),
		SnapshotFormat: snapshot.FormatVersion,
	}
	commitTime := GitCommitTime

	if build != nil {
		for _, setting := range build.Settings {
			switch setting.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = setting.Value
				}
			case "vcs.time":
				if commitTime == "" {
					commitTime = setting.Value
				}
			case "vcs.modified":
				if GitTreeDirty == "" {
					info.Dirty = setting.Value == "true"
				}
			}
		}
		for _, dep := range build.Deps {
			if dep.Path == engineModule {
				info.EngineVersion = dep.Version
				if dep.Replace != nil {
					info.EngineVersion = dep.Replace.Version
				}
			}
		}
	}

	// unparseable times are dropped
	if parsed, err := time.Parse(time.RFC3339, commitTime); err == nil {
		info.CommitTime = parsed.UTC()
	}
	return info
}

// ShortCommit returns the first 7 characters of the commit hash.
func (i Info) ShortCommit() string {
	if len(i.Commit) > 7 {
		return i.Commit[:7]
	}
	return i.Commit
}

// Short returns the one-line version printed by --version, e.g. 0.3.0+0123456-dirty.
func (i Info) Short() string {
	v := i.Version
	if i.Commit != "" {
		v += "+" + i.ShortCommit()
		if i.Dirty {
			v += "-dirty"
		}
	}
	return v
}

// String renders every known field, one per line.
func (i Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "forkdb version %s\n", i.Version)
	line := func(label string, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "  %-11s %s\n", label+":", value)
		}
	}

	commit := i.ShortCommit()
	if commit != "" && i.Dirty {
		commit += "-dirty"
	}
	line("Commit", commit)
	if !i.CommitTime.IsZero() {
		line("Built", i.CommitTime.Format("2006-01-02 15:04:05 MST"))
	}
	line("Engine", i.EngineVersion)
	line("Snapshots", "v"+i.SnapshotFormat)
	line("Go version", i.GoVersion)
	return sb.String()
}
