package version

import (
	"runtime/debug"
)

// Set with -ldflags "-X greenweb/internal/app/version.release=..." at build time.
var (
	release   = "dev"
	commit    = ""
	buildDate = "unknown"
)

// Info describes the running greenweb binary.
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	info := Info{
		Service:   "greenweb",
		Version:   release,
		Commit:    commit,
		BuildDate: buildDate,
	}

	// Fall back to the VCS stamp the toolchain embeds for plain go builds.
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildDate == "unknown" {
					info.BuildDate = s.Value
				}
			}
		}
	}
	return info
}
