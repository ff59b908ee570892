// Copyright (c) 2026, the melodarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import "fmt"

// Version is set during build via ldflags: -X .../internal/buildinfo.Version=vX.Y.Z
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// UserAgent identifies melodarr against indexers, metadata sources and the download client.
var UserAgent = fmt.Sprintf("melodarr/%s", Version)
