// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package control is a root gateway's status socket.
//
// Next to its rendezvous socket, a root gateway listens on
// <dir>/luatt.<pid>.ctl for one-shot CBOR requests. A client connects,
// writes one CBOR map with an "action" key, reads one [Response], and
// disconnects. "luatt status" is the client.
//
// The control socket is separate from the rendezvous socket because the
// rendezvous socket speaks the device wire format and everything written
// to it is forwarded to the device.
package control
