// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

// Package router correlates device replies with the requests that caused
// them.
//
// A gateway has one upstream connection (the serial line, or a parent
// gateway's rendezvous socket) and any number of local requesters: the
// REPL, the manifest loader, and child gateways attached through the
// downstream server. Every request carries a fresh token. The [Router]
// owns two tables:
//
//   - reply sinks: token → the goroutine blocked in [Router.IssueRequest]
//     waiting for that token's "ret" record.
//   - forward targets: token → the child connection whose request carried
//     it. Only a child's most recent request is tracked; a new request
//     from the same child drops the previous entry, and late replies to
//     the dropped token are not forwarded.
//
// [Router.OnUpstreamPacket] is called by the upstream reader goroutine for
// every decoded record, in arrival order. It sends bridge verbs (pub,
// sub, unsub) to the [BridgePeer], delivers to a waiting sink, shows
// records carrying this process's own tokens when nobody is waiting, and
// independently forwards to the child that owns the token. A reply can
// therefore satisfy a local waiter and travel further down a chain; each
// gateway in the chain makes the decision for its own tables.
//
// Both tables are guarded by one mutex. Channel sends and socket writes
// happen outside it.
package router
