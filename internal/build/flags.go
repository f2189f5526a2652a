// SPDX-License-Identifier: MIT

// Package build exposes metadata injected at link time.
package build

import (
	"errors"
	"fmt"
)

// Info holds build-time information that is injected during compilation.
// The fields are populated via -ldflags during the build process, for example:
//
//	go build -ldflags "-X spectrum/internal/build.buildVersion=0.1.0 \
//	  -X spectrum/internal/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X spectrum/internal/build.buildTime=$(date -u +%FT%TZ)"
type Info struct {
	Name        string // Application name
	Description string // One line summary for the CLI
	Time        string // Build timestamp
	Commit      string // Git commit hash
	Version     string // Semantic version
}

// String formats the info for --version output.
func (i *Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Package-level variables for build information.
// These are populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultInfo()
)

func defaultInfo() *Info {
	return &Info{
		Name:        "spectrum",
		Description: "Real-time audio spectrum analysis engine",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies build information from the ldflags variables into the
// build info. Every flag that was set is applied; the returned error lists
// the ones that were missing, which is expected for development builds.
func Initialize() error {
	var errs []error
	apply := func(dst *string, val, name string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			return
		}
		*dst = val
	}

	if buildName != "" {
		buildFlags.Name = buildName
	}
	apply(&buildFlags.Time, buildTime, "BuildTime")
	apply(&buildFlags.Commit, buildCommit, "BuildCommit")
	apply(&buildFlags.Version, buildVersion, "BuildVersion")

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}
