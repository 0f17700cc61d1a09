// Package build holds build information, set with -ldflags at release time, e.g.,
//
//	go build -ldflags "-X github.com/G-Research/ktbench/internal/ktbench/build.ReleaseVersion=v0.3.0"
package build

import "runtime"

var (
	ReleaseVersion = "UNKNOWN"
	GitCommit      = "UNKNOWN"
	BuildTime      = "UNKNOWN"
	GoVersion      = runtime.Version()
)
