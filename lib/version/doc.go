// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the luatt
// binary and parses the firmware version a device announces.
//
// # Build information
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// These default to "unknown" / "0.1.0-dev" when not injected, which
// occurs during development builds and test runs.
//
// # Device firmware
//
// When its serial port opens, a device sends "sched|version|luatt,0.0.1".
// [ParseFirmware] splits the argument into a [Firmware] name and version.
package version
