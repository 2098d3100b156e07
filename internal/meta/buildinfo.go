// Package meta reports build metadata of the running binary.
//
// Best-effort: binaries built outside a module or without VCS stamping
// report what is available and leave the rest empty.
package meta

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Info contains a minimal summary of how the binary was built.
type Info struct {
	Module    string // main module path
	Version   string // module version, "(devel)" for local builds
	Revision  string // VCS revision, shortened to 12 chars
	Time      string // VCS commit time (RFC 3339)
	Modified  bool   // working tree was dirty at build time
	GoVersion string
}

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Detect collects build metadata from the embedded build info.
func Detect() Info {
	bi, ok := readBuildInfo()
	if !ok || bi == nil {
		return Info{Version: "(unknown)"}
	}
	inf := Info{
		Module:    bi.Main.Path,
		Version:   bi.Main.Version,
		GoVersion: bi.GoVersion,
	}
	if inf.Version == "" {
		inf.Version = "(devel)"
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			inf.Revision = s.Value
			if len(inf.Revision) > 12 {
				inf.Revision = inf.Revision[:12]
			}
		case "vcs.time":
			inf.Time = s.Value
		case "vcs.modified":
			inf.Modified = s.Value == "true"
		}
	}
	return inf
}

// String renders a one-line version banner, e.g.
// "zimcompare v1.2.0 (3f2c1a9b0d4e, 2026-01-02T03:04:05Z, go1.24.1)".
func (i Info) String() string {
	var extra []string
	if i.Revision != "" {
		rev := i.Revision
		if i.Modified {
			rev += "-dirty"
		}
		extra = append(extra, rev)
	}
	if i.Time != "" {
		extra = append(extra, i.Time)
	}
	if i.GoVersion != "" {
		extra = append(extra, i.GoVersion)
	}
	s := "zimcompare " + i.Version
	if len(extra) > 0 {
		s += fmt.Sprintf(" (%s)", strings.Join(extra, ", "))
	}
	return s
}
