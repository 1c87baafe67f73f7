// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the luatt binary. They
// cover the raw I/O that happens before the structured logger exists or
// after main has given up:
//
//   - Fatal error reporting to stderr.
//   - Usage errors, which exit with code 2.
package process
