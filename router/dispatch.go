// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"fmt"

	"github.com/luatt/luatt/lib/wire"
)

// OnUpstreamPacket routes one record read from the upstream connection.
// It must be called from a single goroutine, in arrival order.
func (r *Router) OnUpstreamPacket(packet wire.Packet) {
	if len(packet) < 2 {
		r.output.Text(packet)
		return
	}

	tok := packet.Token()
	verb := packet.Verb()

	if verb.IsBridge() && r.bridge != nil {
		if err := r.dispatchBridge(verb, packet); err != nil {
			r.logger.Warn("dropping bridge record",
				"verb", verb.String(),
				"fields", len(packet),
				"error", err,
			)
		}
		return
	}

	r.mu.Lock()
	s := r.sinks[tok]
	entry := r.forwards[tok]
	r.mu.Unlock()

	if s != nil {
		r.deliver(s, packet)
	} else if r.identity.Owns(tok) {
		r.output.Unsolicited(packet)
	}

	if entry != nil {
		r.forward(entry, tok, packet)
	}
}

// dispatchBridge validates a bridge verb's arity and hands it to the
// bridge peer. Bridge verbs are device-initiated and never correlate to a
// pending request.
func (r *Router) dispatchBridge(verb wire.Verb, packet wire.Packet) error {
	if len(packet) != verb.BridgeArity() {
		return fmt.Errorf("%w: %s needs %d, got %d", ErrBridgeArity, verb, verb.BridgeArity(), len(packet))
	}
	topic := packet.Arg(0)
	switch verb {
	case wire.VerbPub:
		return r.bridge.Publish(topic, packet.Arg(1))
	case wire.VerbSub:
		return r.bridge.Subscribe(topic)
	case wire.VerbUnsub:
		return r.bridge.Unsubscribe(topic)
	}
	return nil
}
