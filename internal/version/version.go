/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import "fmt"

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/mixtape/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the VCS revision, set at build time.
var Commit = "unknown"

// String formats the version for display.
func String() string {
	return fmt.Sprintf("mixtape %s (%s)", Version, Commit)
}
