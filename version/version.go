// Package version reports how the binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time with -ldflags "-X github.com/ohsu-comp-bio/cascade/version.Version=...".
var (
	GitCommit = ""
	GitBranch = ""
	BuildDate = ""
	Version   = "unknown"
)

// Info describes a build.
type Info struct {
	Version   string
	GitCommit string
	GitBranch string
	BuildDate string
	GoVersion string
}

// Get returns the build details. Values not set at link time fall back
// to what the Go toolchain embedded in the binary.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "unknown" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.GitCommit == "":
			info.GitCommit = s.Value
		case s.Key == "vcs.time" && info.BuildDate == "":
			info.BuildDate = s.Value
		}
	}
	return info
}

// String formats the build details, one per line, skipping unknown ones.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "version: %s\n", i.Version)
	for _, f := range [][2]string{
		{"git commit", i.GitCommit},
		{"git branch", i.GitBranch},
		{"build date", i.BuildDate},
		{"go", i.GoVersion},
	} {
		if f[1] != "" {
			fmt.Fprintf(&b, "%s: %s\n", f[0], f[1])
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// LogFields returns the build details as logger key/value pairs.
func (i Info) LogFields() []interface{} {
	return []interface{}{
		"version", i.Version,
		"gitCommit", i.GitCommit,
		"gitBranch", i.GitBranch,
		"buildDate", i.BuildDate,
		"goVersion", i.GoVersion,
	}
}
