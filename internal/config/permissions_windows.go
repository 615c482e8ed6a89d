// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

//go:build windows

package config

import "log/slog"

// WarnInsecurePermissions is a no-op on Windows, where access is governed by
// ACLs rather than mode bits.
func WarnInsecurePermissions(path string) bool {
	if path != "" {
		slog.Debug("config permission check skipped on windows", "path", path)
	}
	return false
}
