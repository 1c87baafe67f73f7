// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"fmt"

	"github.com/luatt/luatt/lib/token"
	"github.com/luatt/luatt/lib/wire"
)

// sinkBuffer lets the upstream reader hand off a burst of intermediate
// records without waiting for the requester to print each one.
const sinkBuffer = 32

// sink is the one-shot reply channel of a single outstanding token.
type sink struct {
	packets chan wire.Packet
	// done is closed once the waiter has deregistered, so a delivery
	// racing with deregistration never blocks.
	done chan struct{}
}

// register installs a sink for tok. It reports false if tok already has
// one.
func (r *Router) register(tok string) (*sink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sinks[tok]; exists {
		return nil, false
	}
	s := &sink{
		packets: make(chan wire.Packet, sinkBuffer),
		done:    make(chan struct{}),
	}
	r.sinks[tok] = s
	return s, true
}

// release removes the sink for tok. It runs exactly once per successful
// register, whichever way the wait ended.
func (r *Router) release(tok string, s *sink) {
	r.mu.Lock()
	if r.sinks[tok] == s {
		delete(r.sinks, tok)
	}
	r.mu.Unlock()
	close(s.done)
}

// deliver hands packet to s unless the waiter has already gone.
func (r *Router) deliver(s *sink, packet wire.Packet) {
	select {
	case s.packets <- packet:
	case <-s.done:
	case <-r.closed:
	}
}

// IssueRequest sends [token, verb, args...] upstream under a fresh token
// and blocks until the matching "ret" record arrives, which it returns.
// Other records for the token are shown through Output.Reply while
// waiting. It returns an error wrapping ErrCancelled if ctx is cancelled
// or the router is closed first.
func (r *Router) IssueRequest(ctx context.Context, verb string, args ...string) (wire.Packet, error) {
	select {
	case <-r.closed:
		return nil, fmt.Errorf("%w: router closed", ErrCancelled)
	default:
	}

	var tok string
	var s *sink
	for {
		generated, err := r.identity.New()
		if err != nil {
			return nil, err
		}
		var registered bool
		if s, registered = r.register(generated.String()); registered {
			tok = generated.String()
			break
		}
	}
	defer r.release(tok, s)

	if err := r.upstream.Send(tok, append([]string{verb}, args...)...); err != nil {
		return nil, fmt.Errorf("sending %s: %w", verb, err)
	}

	for {
		select {
		case packet := <-s.packets:
			if packet.Verb() == wire.VerbRet {
				return packet, nil
			}
			r.output.Reply(packet)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case <-r.closed:
			return nil, fmt.Errorf("%w: router closed", ErrCancelled)
		}
	}
}

// Notify sends a fire-and-forget record. No sink is registered and no
// reply is expected.
func (r *Router) Notify(verb string, args ...string) error {
	return r.upstream.Send(token.NoReturn, append([]string{verb}, args...)...)
}

// Reset clears the device's Lua state.
func (r *Router) Reset(ctx context.Context) error {
	reply, err := r.IssueRequest(ctx, wire.VerbReset.String())
	if err != nil {
		return err
	}
	return replyError(wire.VerbReset, reply)
}

// Load sends source to the device as module name and runs it.
func (r *Router) Load(ctx context.Context, name, source string) error {
	reply, err := r.IssueRequest(ctx, wire.VerbLoad.String(), name, source)
	if err != nil {
		return err
	}
	return replyError(wire.VerbLoad, reply)
}

// Eval runs one chunk of Lua on the device. Its output arrives as
// intermediate records and is shown through Output.Reply.
func (r *Router) Eval(ctx context.Context, source string) error {
	reply, err := r.IssueRequest(ctx, wire.VerbEval.String(), source)
	if err != nil {
		return err
	}
	return replyError(wire.VerbEval, reply)
}

// replyError converts a "ret|fail" terminal reply into ErrRequestFailed.
func replyError(verb wire.Verb, reply wire.Packet) error {
	if reply.Arg(0) == "fail" {
		return fmt.Errorf("%w: %s", ErrRequestFailed, verb)
	}
	return nil
}

// WaitAnnouncement blocks until the device sends its startup
// "sched|version|..." record and returns it. Other scheduled records that
// arrive first are shown through Output.Unsolicited. Only a root gateway
// waits; the device announces once, when its serial port opens.
func (r *Router) WaitAnnouncement(ctx context.Context) (wire.Packet, error) {
	s, registered := r.register(token.Scheduled)
	if !registered {
		return nil, fmt.Errorf("router: announcement wait already in progress")
	}
	defer r.release(token.Scheduled, s)

	for {
		select {
		case packet := <-s.packets:
			if packet.Verb() == wire.VerbVersion {
				return packet, nil
			}
			r.output.Unsolicited(packet)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case <-r.closed:
			return nil, fmt.Errorf("%w: router closed", ErrCancelled)
		}
	}
}
