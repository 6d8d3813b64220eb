package internal

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is overridden at build time with -ldflags "-X gqlchat/internal.Version=...".
var Version = "dev"

// VersionString describes the running binary.
func VersionString() string {
	version := Version
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	return fmt.Sprintf("gqlchat %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}
