// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/luatt/luatt/lib/token"
	"github.com/luatt/luatt/lib/wire"
)

var (
	// ErrCancelled is returned by waits that end because their context
	// was cancelled or the router was closed.
	ErrCancelled = errors.New("router: cancelled")

	// ErrRequestFailed is returned when the device answers "ret|fail".
	ErrRequestFailed = errors.New("router: device reported failure")

	// ErrBridgeArity reports a bridge verb with the wrong field count.
	// The record is dropped; the connection stays up.
	ErrBridgeArity = errors.New("router: bridge verb has wrong number of fields")
)

// Sender writes a record to the upstream connection. *wire.Writer
// satisfies it.
type Sender interface {
	Send(token string, fields ...string) error
}

// Output is where records that nobody programmatically consumes are
// shown.
type Output interface {
	// Reply shows an intermediate record for a request this process is
	// waiting on (anything other than its terminal "ret").
	Reply(packet wire.Packet)
	// Unsolicited shows a record carrying one of this process's tokens
	// that no caller is waiting for, typically output from a background
	// Lua thread started by an earlier request.
	Unsolicited(packet wire.Packet)
	// Text shows a record with fewer than two fields: unstructured device
	// output such as log lines.
	Text(packet wire.Packet)
}

// BridgePeer is the message-bus side of the pub/sub bridge.
type BridgePeer interface {
	Publish(topic, payload string) error
	Subscribe(topic string) error
	// Unsubscribe removes topic, or every tracked topic for "*".
	Unsubscribe(topic string) error
}

// Child is a downstream connection that can receive forwarded records.
type Child interface {
	// ID is unique among live children of one router.
	ID() uint64
	// WritePacket is called from the upstream reader with the child's
	// entry locked, so it must not block indefinitely.
	WritePacket(packet wire.Packet) error
}

// Config holds the collaborators of a Router.
type Config struct {
	// Identity owns the tokens this router generates.
	Identity token.Identity

	// Upstream sends requests toward the device.
	Upstream Sender

	// Output shows records no caller consumes. Required.
	Output Output

	// Bridge, if non-nil, receives the device's pub/sub verbs. Only the
	// root gateway configures a bridge; on a child the verbs are never
	// seen because the root consumes them.
	Bridge BridgePeer

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Router owns the reply sink and forward target tables. The zero value is
// not usable; construct with New.
type Router struct {
	identity token.Identity
	upstream Sender
	output   Output
	bridge   BridgePeer
	logger   *slog.Logger

	mu       sync.Mutex
	sinks    map[string]*sink
	forwards map[string]*downstreamEntry
	children map[uint64]*downstreamEntry

	closed    chan struct{}
	closeOnce sync.Once
}

// New returns a Router wired to the given collaborators.
func New(config Config) *Router {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		identity: config.Identity,
		upstream: config.Upstream,
		output:   config.Output,
		bridge:   config.Bridge,
		logger:   logger,
		sinks:    make(map[string]*sink),
		forwards: make(map[string]*downstreamEntry),
		children: make(map[uint64]*downstreamEntry),
		closed:   make(chan struct{}),
	}
}

// Identity returns the identity that owns this router's tokens.
func (r *Router) Identity() token.Identity {
	return r.identity
}

// Close wakes every blocked request with ErrCancelled. Later requests
// fail immediately. Close is idempotent.
func (r *Router) Close() {
	r.closeOnce.Do(func() { close(r.closed) })
}

// Done is closed when the router is closed.
func (r *Router) Done() <-chan struct{} {
	return r.closed
}

// Snapshot is a point-in-time copy of the routing tables.
type Snapshot struct {
	// Pending lists tokens with a registered reply sink.
	Pending []string
	// Forwarded lists tokens with a downstream forward target.
	Forwarded []string
	// Children is the number of child connections that have sent at
	// least one request and not yet disconnected.
	Children int
}

// Snapshot copies the current tables, sorted for stable output.
func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := Snapshot{Children: len(r.children)}
	for tok := range r.sinks {
		snapshot.Pending = append(snapshot.Pending, tok)
	}
	for tok := range r.forwards {
		snapshot.Forwarded = append(snapshot.Forwarded, tok)
	}
	sort.Strings(snapshot.Pending)
	sort.Strings(snapshot.Forwarded)
	return snapshot
}
