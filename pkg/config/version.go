// Package config carries build metadata stamped in at link time.
package config

import (
	"fmt"
	"runtime"
)

// Populated via -ldflags:
//
//	go build -ldflags "-X github.com/patchwatch/patchwatch/pkg/config.Version=v1.2.0 ..."
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// VersionString returns a one-line build description for logs and banners.
func VersionString() string {
	return fmt.Sprintf("patchwatch %s (%s) built %s with %s",
		Version, Commit, BuildTime, runtime.Version())
}
