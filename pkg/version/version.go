// Package version reports the securechat release.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Release is the version of this source tree.
const Release = "0.1.0"

// String returns the module version stamped by go install, or "v" + Release
// for local builds.
func String() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "v" + Release
}

// Full returns the version together with the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("securechat %s (%s %s/%s)", String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
