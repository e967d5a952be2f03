package misc

import (
	"fmt"
	"runtime/debug"
	"slices"
)

const version = "v0.1.0"

func GetVersionInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var vcsRev = "(unknown)"
	if fnd := slices.IndexFunc(info.Settings, func(v debug.BuildSetting) bool { return v.Key == "vcs.revision" }); fnd != -1 {
		vcsRev = info.Settings[fnd].Value[0:7]
	}
	return fmt.Sprintf("%s (%s)", version, vcsRev)
}
