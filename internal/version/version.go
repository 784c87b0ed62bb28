// Package version reports build metadata stamped by -ldflags, falling back
// to the VCS settings the Go toolchain embeds.
package version

import (
	"runtime/debug"
	"strconv"
)

var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

func Get() Info {
	out := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out.GoVersion = bi.GoVersion
		applySettings(&out, bi.Settings)
	}
	return out
}

// applySettings fills what ldflags left unset. An explicit vcs.modified
// wins over the package default.
func applySettings(out *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if out.Commit == "none" || out.Commit == "" {
				out.Commit = s.Value
			}
		case "vcs.time":
			if out.BuildDate == "" {
				out.BuildDate = s.Value
			}
			if out.CommitDate == "" {
				out.CommitDate = s.Value
			}
		case "vcs.modified":
			if b, err := strconv.ParseBool(s.Value); err == nil {
				out.VCSDirty = &b
			}
		}
	}
}

// ShortCommit is the first 12 characters of the commit.
func (i Info) ShortCommit() string {
	if len(i.Commit) > 12 {
		return i.Commit[:12]
	}
	return i.Commit
}

// LogValues is the build metadata as logger key/value pairs.
func (i Info) LogValues() []any {
	kv := []any{
		"build_version", i.Version,
		"commit", i.ShortCommit(),
		"build_date", i.BuildDate,
		"go_version", i.GoVersion,
	}
	if i.VCSDirty != nil {
		kv = append(kv, "vcs_dirty", *i.VCSDirty)
	}
	return kv
}
