// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for luatt packages.
//
// [SocketDir] creates a short temporary directory in /tmp for Unix domain
// sockets. Socket paths are limited to 108 bytes (sun_path in
// sockaddr_un) and t.TempDir() paths can exceed that.
//
// [RequireReceive], [RequireNoReceive] and [RequireClosed] wrap the
// select with a time.After fallback so tests that wait on goroutines fail
// with a message instead of hanging.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
