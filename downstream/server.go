// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package downstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luatt/luatt/lib/netutil"
	"github.com/luatt/luatt/lib/wire"
	"github.com/luatt/luatt/router"
)

// Trace labels passed to Server.Trace.
const (
	// LabelFromChild marks a main line read from a child connection.
	LabelFromChild = "sock>"
	// LabelToChild marks a main line forwarded to a child connection.
	LabelToChild = ">sock"
)

// DefaultWriteTimeout bounds one forward to a child when
// Server.WriteTimeout is zero.
const DefaultWriteTimeout = 10 * time.Second

// Registry is the part of the router the server drives.
// *router.Router satisfies it.
type Registry interface {
	RegisterDownstream(child router.Child, token string)
	UnregisterDownstream(id uint64)
}

// PacketWriter forwards a record upstream. *wire.Writer satisfies it.
type PacketWriter interface {
	WritePacket(packet wire.Packet) error
}

// Server accepts child gateways on the rendezvous socket.
type Server struct {
	// Directory holds the rendezvous socket and its alias.
	Directory string

	// Device is the upstream device path. Its base name names the alias.
	Device string

	// Router receives forward registrations for every child request.
	Router Registry

	// Upstream carries child requests toward the device.
	Upstream PacketWriter

	// Logger receives structured log output. If nil, slog.Default() is
	// used. Per-connection events are logged at Debug level; errors and
	// lifecycle events at Info/Error.
	Logger *slog.Logger

	// Trace, if set, is called with LabelFromChild or LabelToChild and
	// the main line of every record crossing a child connection. It may
	// be called from many goroutines at once.
	Trace func(label, line string)

	// WriteTimeout bounds each record forwarded to a child. A child that
	// does not drain its socket in time is disconnected so that the
	// upstream reader is never held up by it. Zero means
	// DefaultWriteTimeout.
	WriteTimeout time.Duration

	socketPath string
	aliasPath  string
	listener   net.Listener
	cancel     context.CancelFunc
	done       chan struct{}

	connections  sync.WaitGroup
	connectionID atomic.Uint64
	active       atomic.Int64
}

// logger returns the configured logger or the default.
func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Start binds the rendezvous socket, points the alias at it, and begins
// accepting children in the background. It returns once the socket is
// accepting. The server runs until Stop is called or ctx is cancelled.
//
// A stale socket at the instance path is removed first. An existing alias
// symlink is replaced; an alias path that exists but is not a symlink is
// an error.
func (s *Server) Start(ctx context.Context) error {
	if s.Directory == "" {
		return fmt.Errorf("downstream: Directory is required")
	}
	if s.Device == "" {
		return fmt.Errorf("downstream: Device is required")
	}
	if s.Router == nil || s.Upstream == nil {
		return fmt.Errorf("downstream: Router and Upstream are required")
	}

	name := InstanceName(os.Getpid())
	s.socketPath = InstancePath(s.Directory, os.Getpid())
	s.aliasPath = AliasPath(s.Directory, s.Device)

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}

	if info, err := os.Lstat(s.aliasPath); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			listener.Close()
			return fmt.Errorf("alias %s exists and is not a symlink", s.aliasPath)
		}
		if err := os.Remove(s.aliasPath); err != nil {
			listener.Close()
			return fmt.Errorf("removing old alias %s: %w", s.aliasPath, err)
		}
	}
	if err := os.Symlink(name, s.aliasPath); err != nil {
		listener.Close()
		return fmt.Errorf("creating alias %s: %w", s.aliasPath, err)
	}

	s.listener = listener
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	go func() {
		defer close(s.done)
		s.acceptLoop(ctx)
		s.removePaths(name)
	}()

	s.logger().Info("rendezvous socket listening",
		"path", s.socketPath,
		"alias", s.aliasPath,
	)
	return nil
}

// SocketPath returns the instance socket path. Empty before Start.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// AliasPath returns the alias symlink path. Empty before Start.
func (s *Server) AliasPath() string {
	return s.aliasPath
}

// Active returns the number of connected children.
func (s *Server) Active() int {
	return int(s.active.Load())
}

// Stop closes the listener, disconnects every child, and waits for their
// handlers to finish. The socket and alias are removed.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.Wait()
}

// Wait blocks until the server has stopped.
func (s *Server) Wait() {
	if s.done != nil {
		<-s.done
	}
}

// removePaths deletes the socket, and the alias if it still points at
// this instance. A newer root may have taken the alias over.
func (s *Server) removePaths(name string) {
	os.Remove(s.socketPath)
	if target, err := os.Readlink(s.aliasPath); err == nil && target == name {
		os.Remove(s.aliasPath)
	}
}

// acceptLoop accepts children until the listener closes, then waits for
// every handler to return.
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		connection, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger().Error("accept failed", "error", err)
			continue
		}

		id := s.connectionID.Add(1)
		s.connections.Add(1)
		s.active.Add(1)
		go func() {
			defer s.connections.Done()
			defer s.active.Add(-1)
			s.handleConnection(ctx, connection, id)
		}()
	}
	s.connections.Wait()
}

// child is one accepted connection as the router sees it.
type child struct {
	id         uint64
	connection net.Conn
	writer     *wire.Writer
	timeout    time.Duration
}

func (c *child) ID() uint64 { return c.id }

// WritePacket forwards packet under a write deadline. A failed write
// may have left a partial record on the socket, so the connection is
// closed and the child's reader tears the rest down.
func (c *child) WritePacket(packet wire.Packet) error {
	c.connection.SetWriteDeadline(time.Now().Add(c.timeout))
	err := c.writer.WritePacket(packet)
	if err != nil {
		c.connection.Close()
	}
	return err
}

// handleConnection services one child until it disconnects, sends
// something undecodable, or the server stops.
func (s *Server) handleConnection(ctx context.Context, connection net.Conn, id uint64) {
	// Close before unregistering: a forward blocked writing to this
	// child holds the entry lock until the write fails.
	defer func() {
		connection.Close()
		s.Router.UnregisterDownstream(id)
	}()

	logger := s.logger().With("connection_id", id)
	logger.Debug("child connected")

	writer := wire.NewWriter(connection, logger)
	reader := wire.NewReader(connection)
	if s.Trace != nil {
		reader.OnLine = func(line string) { s.Trace(LabelFromChild, line) }
		writer.OnLine = func(line string) { s.Trace(LabelToChild, line) }
	}
	timeout := s.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	self := &child{id: id, connection: connection, writer: writer, timeout: timeout}

	for {
		packet, err := reader.Next(ctx)
		if err != nil {
			s.logReadError(logger, err)
			return
		}
		s.Router.RegisterDownstream(self, packet.Token())
		if err := s.Upstream.WritePacket(packet); err != nil {
			logger.Error("forwarding child request upstream failed",
				"token", packet.Token(),
				"error", err,
			)
			return
		}
	}
}

// logReadError reports why a child's read loop ended, at a level that
// matches how surprising the reason is.
func (s *Server) logReadError(logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, wire.ErrCancelled):
		logger.Debug("child disconnected")
	case errors.Is(err, wire.ErrMalformedPacket):
		logger.Error("closing child after malformed record", "error", err)
	case netutil.IsExpectedCloseError(err):
		logger.Debug("child connection closed", "error", err)
	default:
		logger.Warn("child read failed", "error", err)
	}
}
