// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"sync"

	"github.com/luatt/luatt/lib/token"
	"github.com/luatt/luatt/lib/wire"
)

// downstreamEntry tracks the one outstanding request of a child
// connection.
//
// Lock order: entry.mu before Router.mu. token is written with both held,
// so reading it under either is safe. Holding entry.mu across a forward
// write means a concurrent RegisterDownstream for the same child waits
// until the write finishes, and a forward that starts after the
// replacement sees the new token and drops the stale reply.
type downstreamEntry struct {
	child Child

	mu    sync.Mutex
	token string
	gone  bool
}

// RegisterDownstream records that child's latest request carries tok.
// Any earlier entry owned by child is dropped first. Tokens that expect
// no reply (empty, "noret") only drop the earlier entry.
func (r *Router) RegisterDownstream(child Child, tok string) {
	r.mu.Lock()
	entry := r.children[child.ID()]
	if entry == nil {
		entry = &downstreamEntry{child: child}
		r.children[child.ID()] = entry
	}
	r.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.gone {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.token != "" && r.forwards[entry.token] == entry {
		delete(r.forwards, entry.token)
	}
	entry.token = ""
	if !token.ExpectsReply(tok) {
		return
	}
	entry.token = tok
	r.forwards[tok] = entry
}

// UnregisterDownstream removes whatever forward target the child with
// the given id still owns. Called when the child disconnects.
func (r *Router) UnregisterDownstream(id uint64) {
	r.mu.Lock()
	entry := r.children[id]
	r.mu.Unlock()
	if entry == nil {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.token != "" && r.forwards[entry.token] == entry {
		delete(r.forwards, entry.token)
	}
	if r.children[id] == entry {
		delete(r.children, id)
	}
	entry.token = ""
	entry.gone = true
}

// forward re-encodes packet to the child owning tok, unless the child has
// moved on to a newer request or disconnected since the lookup.
func (r *Router) forward(entry *downstreamEntry, tok string, packet wire.Packet) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.gone || entry.token != tok {
		return
	}
	if err := entry.child.WritePacket(packet); err != nil {
		// The child's own reader notices the broken connection and
		// unregisters it.
		r.logger.Debug("forward to child failed",
			"child", entry.child.ID(),
			"token", tok,
			"error", err,
		)
	}
}
