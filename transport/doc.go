// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport opens a gateway's upstream connection.
//
// The upstream is either the device's serial port, for a root gateway,
// or another gateway's rendezvous socket, for a child. [Open] decides
// which by the file type at the given path: a character device is a
// serial port and a Unix socket (or a symlink to one, such as a
// rendezvous alias) is a parent gateway.
//
// Serial ports are configured for canonical (line-at-a-time) input, 8N1,
// no flow control, and opened non-blocking so that the returned *os.File
// supports read deadlines. The wire reader relies on deadlines to
// interrupt a blocked read on shutdown.
package transport
