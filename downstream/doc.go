// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package downstream accepts child gateways on a root gateway's
// rendezvous socket and splices them into the root's router.
//
// A root gateway listens on <dir>/luatt.<pid> and points a stable alias,
// <dir>/luatt.<device basename>, at it, so a child that only knows the
// device name can find the running instance:
//
//	/tmp/luatt.97372                                 (socket)
//	/tmp/luatt.cu.usbmodemFD114301 -> luatt.97372    (alias)
//
// Every accepted connection gets its own goroutine, wire.Reader and
// wire.Writer. Records read from a child are registered with the router
// as that child's latest request and written upstream unchanged; replies
// come back through the router's forward table.
package downstream
