// SPDX-License-Identifier: MIT
package main

import (
	"spectrum/cmd"
	"spectrum/internal/build"
	applog "spectrum/internal/log"
)

func main() {
	// Development builds carry no ldflags; the defaults are fine for them.
	if err := build.Initialize(); err != nil {
		applog.Debugf("build: %v", err)
	}

	if err := cmd.Execute(); err != nil {
		applog.Fatalf("%v", err)
	}
}
